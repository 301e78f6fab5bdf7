// Package pagination drives the sequential page-by-page download of the
// symbol catalog.
//
// The catalog's continuation cursor is inherently sequential: each page's
// nextKey comes from the previous response, so there is no parallelism to
// exploit on the fetch path. The driver therefore runs one strict loop:
//
//	fetch page at cursor -> persist batch file -> checkpoint state ->
//	advance cursor -> inter-request delay -> repeat
//
// Batch files are written and checkpointed in ascending index order, and a
// checkpoint is only written after the batch file it describes has been
// renamed into place. Killing the process between any two steps leaves the
// output directory resumable: at worst the last in-flight page is fetched
// again and overwrites the same batch file.
//
// Example usage:
//
//	runner, err := pagination.NewRunner(pagination.Config{
//		Fetcher: client,
//		Batches: writer,
//		State:   stateManager,
//		Delay:   2 * time.Second,
//	})
//	reason, err := runner.Run(ctx)
package pagination
