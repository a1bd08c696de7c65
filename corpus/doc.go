// Package corpus reads and writes the on-disk artifacts of the pipeline:
// raw text documents, chunk record batches, the ordered passage corpus and
// query files.
package corpus
