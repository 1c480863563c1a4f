// Package notify delivers subscription lifecycle notifications to the chat
// front end through an explicit list of channels. Messages are rendered in
// Brazilian Portuguese with golang.org/x/text.
package notify
