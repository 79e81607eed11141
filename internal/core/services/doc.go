// Package services contains the pipeline stages: structural pre-filter,
// index builder, retriever, semantic annotator, context group builder,
// candidate generator, dataset builder and corpus statistics. Each stage
// is a plain struct wired with driven ports so every model call, index
// lookup and file access can be faked in tests.
package services
