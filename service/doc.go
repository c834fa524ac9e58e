/*
Package service provides an in-memory emulation of a service-to-service
binding for tests.

A Client stands in for a bound upstream service: every Fetch is normalized,
recorded, and answered from scripted rules, an optional custom handler, or a
built-in default, without any network traffic. Code under test talks to the
binding exactly as it would in production while tests inspect the recorded
calls afterwards.

# Basic Usage

	client, err := service.New(service.Config{})
	if err != nil {
		// handle error
	}

	resp, err := client.Fetch("https://pricing.internal/dyes/snow-white")
	if err != nil {
		// handle error
	}
	if resp.OK {
		data := resp.JSON()
		_ = data
	}

Without any scripting every call answers with status 200 and the body
{"success":true}.

# Scripted Responses

Rules pair a URL match with a canned response. Substring rules are checked
first in insertion order, then regular expression rules in insertion order;
the first match wins and a miss falls through to the default response:

	client.On("/dyes/").Return(&service.Response{
		Status: 200,
		Body:   []byte(`{"name":"snow white","hex":"#fafafa"}`),
	})
	client.OnRegexp(regexp.MustCompile(`/palettes/\d+`)).Return(&service.Response{
		Status: 404,
	})

A custom handler replaces the rule chain entirely and is the only way to make
Fetch itself return an error:

	client.SetHandler(func(req *service.Request) (*service.Response, error) {
		if req.Method == "DELETE" {
			return nil, errors.New("refused")
		}
		return nil, nil // nil response falls back to the default
	})

# Call History

Every Fetch is recorded before resolution, so calls that end in a handler
error still appear. Records carry a monotonic sequence number, the normalized
method, lowercase header keys, and the snapshotted body:

	client.Fetch("https://pricing.internal/dyes", &service.RequestInit{
		Method: "post",
		Body:   `{"name":"jet black"}`,
	})

	last := client.LastCall()
	// last.Method == "POST", last.Seq == 1

The history is bounded (default 1000 records); once full, the oldest record
is evicted first. SetMaxCallHistory changes the bound immediately.
*/
package service
