package client_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/adamwoolhether/httpengine/client"
	"github.com/adamwoolhether/httpengine/executor"
)

func ExampleContext_NewRequest() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "hello")
	}))
	defer srv.Close()

	rt := executor.New()
	defer rt.Dispose()

	var body strings.Builder
	c, err := client.New(rt, client.Callbacks{
		OnHeaders: func(seq int32, state any, status int, v client.Version) {
			fmt.Printf("%d headers: %d %s\n", seq, status, v)
		},
		OnData: func(seq int32, state any, buf []byte) {
			body.Write(buf)
		},
		OnComplete: func(seq int32, state any, reason client.CompletionReason, code uint32) {
			fmt.Printf("%d complete: %s body=%q\n", seq, reason, body.String())
		},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := c.Build(); err != nil {
		fmt.Println(err)
		return
	}

	r := c.NewRequest(1)
	defer r.Destroy()
	if err := r.SetURI(srv.URL); err != nil {
		fmt.Println(err)
		return
	}
	if err := r.Begin(nil); err != nil {
		fmt.Println(err)
		return
	}
	<-r.Done()

	// Output:
	// 1 headers: 200 HTTP/1.1
	// 1 complete: success body="hello"
}

func ExampleRequest_Abort() {
	rt := executor.New()
	defer rt.Dispose()

	done := make(chan client.CompletionReason, 1)
	c, _ := client.New(rt, client.Callbacks{
		OnComplete: func(_ int32, _ any, reason client.CompletionReason, _ uint32) { done <- reason },
	})
	c.Build()

	r := c.NewRequest(1)
	defer r.Destroy()
	r.SetURI("http://example.invalid/")
	r.Abort()
	r.Begin(nil)

	fmt.Println(<-done)

	// Output:
	// aborted
}
