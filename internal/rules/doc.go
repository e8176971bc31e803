// Package rules holds the parameterised rule kinds used by blockshift
// migrations: block value rewrites (image_struct, date_format), a tree
// regrouping (content_sections) and record rewrites (alt_text_from_image,
// field_defaults).
//
// Every rule works on the private copy it is handed and returns the new
// value; none of them keeps references to its input.
package rules
