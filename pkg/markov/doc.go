/*
Package markov builds word-level Markov charts from a corpus and walks them
to produce synthetic, sentence-terminated text.

A Chart maps every State (a fixed-length window of consecutive words) to a
Distribution over the words observed to follow it. Charts are built once per
corpus and state size with a ChartBuilder, never change afterwards, and can
be shared by any number of concurrent generation runs.

A Generator opens each run on a starter state (one whose first word is
capitalized and free of '.', '!' and '?'), samples words by their observed
weights until a minimum length is reached, and then keeps sampling until a
word ends a sentence. Unseen states fall back to a random chart state, and
terminal seeking is bounded, so a run always either completes or fails with
a typed error.
*/
package markov
