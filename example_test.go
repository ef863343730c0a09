package xmlhub_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/errors"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

func ExampleHub_Process() {
	reg := xmlhub.NewRegistry()
	err := reg.Register("book", func() xmlhub.Handler {
		var title strings.Builder
		var id string
		return xmlhub.HandlerFuncs{
			OnStart: func(name string, attrs xmlevent.Attributes) error {
				if name == "book" {
					id = attrs.Value("id")
				}
				return nil
			},
			OnText: func(value string) error {
				title.WriteString(value)
				return nil
			},
			OnEnd: func(string) error {
				fmt.Printf("%s: %s\n", id, title.String())
				return nil
			},
		}
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	hub, err := xmlhub.New(reg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	doc := `<library>
  <book id="b1"><title>Dune</title></book>
  <book id="b2"><title>Solaris</title></book>
</library>`
	if err := hub.Process(context.Background(), strings.NewReader(doc)); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	// Output:
	// b1: Dune
	// b2: Solaris
}

func ExampleHub_Process_malformed() {
	hub, err := xmlhub.New(xmlhub.NewRegistry())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	err = hub.Process(context.Background(), strings.NewReader(`<a></a></a>`))
	if e, ok := errors.As(err); ok {
		fmt.Println(e.Code, e.Class())
	}
	// Output: xml-unbalanced-end malformed-input
}
