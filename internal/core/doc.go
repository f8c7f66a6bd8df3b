// Package core implements the statement import processing pipeline.
//
// The pipeline takes a user-supplied bank or credit-card statement file,
// validates it, content-addresses it, uploads it to object storage, records
// it in the import store, fires the asynchronous parsing job, and then
// follows the job to a terminal state through a status subscription. The
// package has no HTTP or UI dependencies and can be driven by any frontend.
//
// Collaborators (object storage, the import record store, the processing
// trigger, and the status channel) are consumed through interfaces defined
// here and implemented in sibling packages.
package core
