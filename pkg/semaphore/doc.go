// Package semaphore is a typed client for the Semaphore automation server
// REST API.
//
// A Client owns exactly one Session. Password sessions log in lazily on the
// first call and keep the session cookie; token sessions send a bearer
// header and never call the login endpoint. A request rejected with 401 is
// reported as an *AuthError with reason AuthExpired and is not retried.
//
// Every failure coming out of the HTTP layer is an *APIError classified as
// NotFound, Validation, Timeout, Unreachable or Unexpected:
//
//	tmpl, err := client.GetTemplate(ctx, projectID, templateID)
//	if semaphore.IsNotFound(err) {
//		// create it
//	}
//
// Updates take sparse structs whose pointer fields are sent only when set,
// so an omitted field never clears a server-side value:
//
//	err := client.UpdateTemplate(ctx, projectID, id, semaphore.TemplateUpdate{
//		Name: semaphore.String("core-switch-vlan"),
//	})
//
// Survey variables and arguments are structured slices in Go and are
// encoded as JSON strings only on the wire.
package semaphore
