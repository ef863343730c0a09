package handlers

import (
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

// JSONRecord turns each scope into one compact JSON object written when the
// scope closes:
//
//	{"element":"item","attrs":{"id":"1"},"text":"x","descendants":["name"]}
//
// attrs holds the attributes of the scope's own element; text is the
// concatenated text of the scope; descendants lists the start tags of nested
// elements in document order.
type JSONRecord struct {
	out         *Lines
	owner       string
	attrs       xmlevent.Attributes
	text        strings.Builder
	descendants []string
}

// JSONFactory returns a factory whose records are written to out.
func JSONFactory(out *Lines) xmlhub.Factory {
	return func() xmlhub.Handler {
		return &JSONRecord{out: out}
	}
}

func (j *JSONRecord) StartElement(name string, attrs xmlevent.Attributes) error {
	if j.owner == "" {
		j.owner = name
		j.attrs = attrs.Clone()
		return nil
	}
	j.descendants = append(j.descendants, name)
	return nil
}

func (j *JSONRecord) Text(value string) error {
	j.text.WriteString(value)
	return nil
}

func (j *JSONRecord) EndElement(string) error {
	doc, err := j.encode()
	if err != nil {
		return fmt.Errorf("encode <%s> record: %w", j.owner, err)
	}
	return j.out.WriteLine(doc)
}

func (j *JSONRecord) encode() (string, error) {
	doc, err := sjson.Set("", "element", j.owner)
	if err != nil {
		return "", err
	}
	doc, err = sjson.SetRaw(doc, "attrs", "{}")
	if err != nil {
		return "", err
	}
	for _, a := range j.attrs {
		if doc, err = sjson.Set(doc, "attrs."+escapePathKey(a.Name), a.Value); err != nil {
			return "", err
		}
	}
	if doc, err = sjson.Set(doc, "text", strings.TrimSpace(j.text.String())); err != nil {
		return "", err
	}
	descendants := j.descendants
	if descendants == nil {
		descendants = []string{}
	}
	return sjson.Set(doc, "descendants", descendants)
}

// escapePathKey escapes the characters sjson treats as path syntax.
func escapePathKey(key string) string {
	if !strings.ContainsAny(key, `.*?\:`) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(`.*?\:`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
