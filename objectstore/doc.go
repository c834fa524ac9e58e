/*
Package objectstore provides an in-memory emulation of an object storage
bucket binding for tests.

A Bucket holds byte payloads under string keys together with the metadata an
object storage service attaches to every upload: a random etag, a random
version, the upload instant, and optional HTTP and custom metadata. Values
are normalized on write, so strings, byte slices, and readers all land as one
contiguous payload.

# Basic Usage

	bucket, err := objectstore.New(objectstore.Config{})
	if err != nil {
		// handle error
	}

	obj, err := bucket.Put("palettes/winter.json", `{"dyes":["snow white"]}`)
	if err != nil {
		// handle error
	}

	body := bucket.Get("palettes/winter.json")
	if body == nil {
		// absent key
	}
	text := body.Text()

Get returns nil for absent keys rather than an error, matching the binding
it emulates. The returned handle materializes the payload fresh on every
call, so mutating one Bytes result never affects the next.

# Listing

List walks keys in insertion order, filtered by prefix and cut off at the
limit:

	res := bucket.List(objectstore.ListOptions{Prefix: "palettes/"})
	for _, obj := range res.Objects {
		// obj.Key, obj.Size, obj.ETag
	}

Truncated reports len(Objects) >= limit; a listing that ends exactly at the
limit is reported as truncated even when nothing follows it.
*/
package objectstore
