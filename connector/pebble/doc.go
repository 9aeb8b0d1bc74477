// Package pebble polls a key range of a Pebble database.
//
// Rows live under a key prefix ("rows/" by default) and are delivered in key
// order. After a row is processed the consumer either deletes it, moves it
// under the consumed prefix, or leaves it in place. In every case the
// watermark, the last committed key, is written to a metadata key in the same
// batch, and later polls only return keys strictly after it. The watermark
// survives restarts.
package pebble
