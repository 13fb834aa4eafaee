// Package models defines the data structures shared by the gate, the fixer and the queue.
package models

import "time"

// Article is a single blog post as held by the external content store.
// The pipeline reads every field but only ever rewrites BodyHTML (and, optionally, Image).
type Article struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Handle    string    `json:"handle,omitempty" yaml:"handle,omitempty"`
	BodyHTML  string    `json:"body_html" yaml:"body_html"`
	Tags      []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Image     *ImageRef `json:"image,omitempty" yaml:"image,omitempty"`
	Published bool      `json:"published" yaml:"published"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// ImageRef is the featured image reference of an article.
type ImageRef struct {
	Src string `json:"src" yaml:"src"`
	Alt string `json:"alt,omitempty" yaml:"alt,omitempty"`
}
