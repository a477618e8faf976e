// Package sentperm builds training batches for document-level pretraining
// with two objectives: recovering the original order of shuffled sentences
// and reconstructing masked sentences.
//
// # Quick Start
//
//	tok, err := vocab.NewTokenizer("sentencepiece.bpe.model")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dict := tok.Dictionary()
//
//	ds, err := sentperm.New(source, dict, sentperm.WithSeed(1))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	batch, err := ds.Collate(samples)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Every batch carries two views of the same documents: a permuted view with
// its target order and a masked view with the original sentences to
// reconstruct. Both views share sentence counts, padding and segment ids;
// Collate fails with ErrInconsistentViews otherwise.
//
// # Thread Safety
//
// A Dataset owns a random source and must not be shared between
// goroutines. Create one per worker with distinct seeds.
package sentperm
