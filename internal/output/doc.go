// Package output renders a run report locally in text, JSON, or markdown.
// Markdown emits the same summary body delivery would post, which makes
// dry runs inspectable.
package output
