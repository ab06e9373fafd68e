// Package todo implements the to-do list resource: storage backends, HTTP handlers
// and a typed client.
//
// Items are owned by the caller identity that created them. The first caller to
// reach an empty store receives two sample items.
package todo
