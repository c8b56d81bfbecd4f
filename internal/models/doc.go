// Package models defines the data types shared by the courier engine:
// identities and conversation ids, persisted message records, conversation
// view items, directory profiles, and the store paths they live under.
package models
