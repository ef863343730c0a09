package xmlhub_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jacoelho/xmlhub"
)

func TestHubProcessConcurrent(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<root>
  <item>1</item>
  <item>2</item>
  <item><item>3</item></item>
</root>`

	var created, ended atomic.Int64
	reg := xmlhub.NewRegistry()
	if err := reg.Register("item", func() xmlhub.Handler {
		created.Add(1)
		return xmlhub.HandlerFuncs{OnEnd: func(string) error {
			ended.Add(1)
			return nil
		}}
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	hub, err := xmlhub.New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const goroutines = 8
	const iterations = 25

	errCh := make(chan error, goroutines*iterations)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if err := hub.Process(context.Background(), strings.NewReader(docXML)); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("concurrent Process error: %v", err)
	}
	if want := int64(goroutines * iterations * 4); created.Load() != want || ended.Load() != want {
		t.Fatalf("handlers created=%d ended=%d, want %d", created.Load(), ended.Load(), want)
	}
}
