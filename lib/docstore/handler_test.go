package docstore

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var trace []string

	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				trace = append(trace, name+">")
				resp, err := next.Send(ctx, req)
				trace = append(trace, "<"+name)
				return resp, err
			})
		}
	}

	terminal := HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		trace = append(trace, "terminal")
		return &Response{StatusCode: http.StatusOK}, nil
	})

	h := Chain(terminal, mark("a"), mark("b"))
	if _, err := h.Send(context.Background(), &Request{Op: OpRead}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	want := []string{"a>", "b>", "terminal", "<b", "<a"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestChainWithoutMiddlewares(t *testing.T) {
	terminal := HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: http.StatusNoContent}, nil
	})
	resp, err := Chain(terminal).Send(context.Background(), &Request{})
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Send() = (%v, %v), want 204", resp, err)
	}
}

func TestStatusErrorIs(t *testing.T) {
	tests := []struct {
		name     string
		resp     Response
		sentinel error
		want     bool
	}{
		{"not found", Response{StatusCode: 404}, ErrNotFound, true},
		{"conflict", Response{StatusCode: 409}, ErrConflict, true},
		{"precondition", Response{StatusCode: 412}, ErrPreconditionFailed, true},
		{"concurrency marker", Response{StatusCode: 412, SubStatus: SubStatusConcurrencyConflict}, ErrConcurrencyConflict, true},
		{"412 without marker", Response{StatusCode: 412}, ErrConcurrencyConflict, false},
		{"throttled", Response{StatusCode: 429}, ErrThrottled, true},
		{"bad request", Response{StatusCode: 400}, ErrBadRequest, true},
		{"server error is not not found", Response{StatusCode: 500}, ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ErrorFromResponse(OpReplace, &tt.resp)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, tt.sentinel); got != tt.want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", err, tt.sentinel, got, tt.want)
			}
			if StatusCode(err) != tt.resp.StatusCode {
				t.Errorf("StatusCode() = %d, want %d", StatusCode(err), tt.resp.StatusCode)
			}
		})
	}

	if err := ErrorFromResponse(OpRead, &Response{StatusCode: 200}); err != nil {
		t.Errorf("success response produced error %v", err)
	}
}
