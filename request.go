package httpengine

import (
	"fmt"

	"github.com/adamwoolhether/httpengine/client"
)

// RequestNew creates a request on c. seq is echoed to every callback.
func RequestNew(c ClientContext, seq int32) RequestContext {
	return requests.put(contexts.get(c).NewRequest(seq))
}

func RequestSetMethod(r RequestContext, method string) bool {
	return report("request_set_method", requests.get(r).SetMethod(method))
}

// RequestSetURI parses uri. On failure the request keeps its previous state.
func RequestSetURI(r RequestContext, uri string) bool {
	return report("request_set_uri", requests.get(r).SetURI(uri))
}

func RequestSetVersion(r RequestContext, v client.Version) bool {
	if v < client.HTTP09 || v > client.HTTP3 {
		setLastError("request_set_version", fmt.Errorf("unknown http version %d", v))
		return false
	}
	requests.get(r).SetVersion(v)
	return true
}

// RequestSetHeader appends a header field. Repeated names are kept.
func RequestSetHeader(r RequestContext, name, value string) bool {
	return report("request_set_header", requests.get(r).SetHeader(name, value))
}

func RequestSetHasBody(r RequestContext, v bool) bool {
	requests.get(r).SetHasBody(v)
	return true
}

// RequestBegin dispatches the request. state is handed back to every
// callback. It returns false when the runtime no longer accepts work; no
// callback fires in that case.
func RequestBegin(r RequestContext, state any) bool {
	return report("request_begin", requests.get(r).Begin(state))
}

func RequestWriteBody(r RequestContext, p []byte) client.WriteResult {
	return requests.get(r).WriteBody(p)
}

// RequestCompleteBody half-closes the outbound body. It is idempotent.
func RequestCompleteBody(r RequestContext) bool {
	requests.get(r).CompleteBody()
	return true
}

func RequestAbort(r RequestContext) {
	requests.get(r).Abort()
}

// =============================================================================
// Response

// RequestResponseGetHeadersCount returns the number of response header
// fields. Fields are sorted by name since wire order is not kept.
func RequestResponseGetHeadersCount(r RequestContext) int32 {
	return int32(requests.get(r).HeadersCount())
}

func RequestResponseGetHeaderKey(r RequestContext, i int32) []byte {
	return []byte(requests.get(r).HeaderKey(int(i)))
}

func RequestResponseGetHeaderValue(r RequestContext, i int32) []byte {
	return []byte(requests.get(r).HeaderValue(int(i)))
}

func RequestResponseGetTrailersCount(r RequestContext) int32 {
	return int32(requests.get(r).TrailersCount())
}

func RequestResponseGetTrailersKey(r RequestContext, i int32) []byte {
	return []byte(requests.get(r).TrailerKey(int(i)))
}

func RequestResponseGetTrailersValue(r RequestContext, i int32) []byte {
	return []byte(requests.get(r).TrailerValue(int(i)))
}

// RequestResponseGetError returns why the request ended with Error or
// Aborted, or nil.
func RequestResponseGetError(r RequestContext) []byte {
	if err := requests.get(r).Err(); err != nil {
		return []byte(err.Error())
	}
	return nil
}

// RequestDestroy releases the caller's reference. The handle must not be
// used afterwards; an in-flight dispatch still runs to its terminal callback.
func RequestDestroy(r RequestContext) bool {
	requests.take(r).Destroy()
	return true
}

// report records err for GetLastError and returns whether the call succeeded.
func report(op string, err error) bool {
	if err != nil {
		setLastError(op, err)
		return false
	}
	return true
}
