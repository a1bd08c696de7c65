// Package retrieval answers query vectors with two ranked lists per query:
// an exact top-k over every corpus vector, used as ground truth, and an
// approximate top-k from the model's ANN index. Comparing the two gives
// recall@k.
package retrieval
