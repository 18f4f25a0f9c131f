// Package corpus stores named text corpora in SQLite, along with a history of
// the generation runs made from them.
//
// A corpus is an ordered collection of documents. Its text is the
// concatenation of its documents, one per line, in the order they were added,
// and is what a chart is built from.
//
// # Getting Started
//
//	db, err := sql.Open("sqlite3", "drosera.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := corpus.SetupSchema(db); err != nil {
//		log.Fatal(err)
//	}
//	store, err := corpus.NewStore(db)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	info, err := store.CreateCorpus(ctx, "fairy-tales")
//	_, err = store.AddDocument(ctx, info, "grimm.txt", text)
//	corpusText, err := store.Text(ctx, info)
package corpus
