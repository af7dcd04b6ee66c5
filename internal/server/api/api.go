// Package api exposes the request/response contract of the RBAC backend and
// dispatches inbound requests to the auth endpoints and the user directory
// operations. The contract mirrors a serverless gateway event: method, path,
// headers, query parameters and a JSON body in; a status code, a JSON body
// and optional headers out.
package api

import "encoding/json"

// Request is the typed inbound request.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
}

// Response is the typed outbound response.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

func jsonResponse(status int, payload any) *Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Response{StatusCode: 500, Body: `{"error":"encoding error"}`}
	}
	return &Response{StatusCode: status, Body: string(body)}
}

func errorBody(status int, message string) *Response {
	return jsonResponse(status, map[string]string{"error": message})
}

func messageBody(status int, message string) *Response {
	return jsonResponse(status, map[string]string{"message": message})
}
