package loom

// Response lets a handler control the HTTP status code and body.
//
//	func (c *PostController) Create(p Post) (*loom.Response, error) {
//		return loom.Created(c.posts.Add(p)), nil
//	}
type Response struct {
	Status int
	Body   any
}

// StatusCode implements dispatch.StatusCarrier
func (r *Response) StatusCode() int {
	return r.Status
}

// ResponseBody implements dispatch.StatusCarrier
func (r *Response) ResponseBody() any {
	return r.Body
}

// NewResponse creates a Response with the given status and body
func NewResponse(statusCode int, body any) *Response {
	return &Response{Status: statusCode, Body: body}
}

// OK creates a 200 OK response
func OK(body any) *Response {
	return NewResponse(200, body)
}

// Created creates a 201 Created response
func Created(body any) *Response {
	return NewResponse(201, body)
}

// Accepted creates a 202 Accepted response
func Accepted(body any) *Response {
	return NewResponse(202, body)
}

// NoContent creates a 204 No Content response
func NoContent() *Response {
	return NewResponse(204, nil)
}
