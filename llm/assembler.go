package llm

import (
	"encoding/json"
	"sort"
	"strings"
)

// CallAssembler accumulates the incremental tool-call fragments a streaming
// vendor emits, keyed by the vendor's call index. Argument JSON may arrive
// split across many chunks; fragments are concatenated raw and parsed exactly
// once, in Finalize, after the stream has completed. Parsing before the
// stream ends would see truncated JSON and is never attempted.
type CallAssembler struct {
	fragments map[int]*callFragment
}

type callFragment struct {
	id   string
	name string
	args strings.Builder
}

// NewCallAssembler creates an empty assembler. One assembler serves one
// streaming request.
func NewCallAssembler() *CallAssembler {
	return &CallAssembler{fragments: make(map[int]*callFragment)}
}

// Begin registers a new tool call at the vendor's call index. Name and id may
// arrive on the first fragment only; later Begin calls for the same index fill
// in whichever of the two was still empty.
func (a *CallAssembler) Begin(index int, id, name string) {
	frag, ok := a.fragments[index]
	if !ok {
		frag = &callFragment{}
		a.fragments[index] = frag
	}
	if frag.id == "" {
		frag.id = id
	}
	if frag.name == "" {
		frag.name = name
	}
}

// AppendArgs appends a raw argument-JSON fragment to the call at index.
// Fragments for an index that was never begun are attributed to an implicit
// call so that no vendor output is silently dropped.
func (a *CallAssembler) AppendArgs(index int, fragment string) {
	if fragment == "" {
		return
	}
	frag, ok := a.fragments[index]
	if !ok {
		frag = &callFragment{}
		a.fragments[index] = frag
	}
	frag.args.WriteString(fragment)
}

// Len returns the number of calls accumulated so far.
func (a *CallAssembler) Len() int {
	return len(a.fragments)
}

// Finalize parses each accumulated argument buffer once and returns the
// completed calls in ascending index order. Unparseable or empty argument
// buffers yield an empty args map rather than an error: a malformed tool call
// is the model's mistake and is answered, not fatal.
func (a *CallAssembler) Finalize() []FunctionCall {
	if len(a.fragments) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.fragments))
	for idx := range a.fragments {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]FunctionCall, 0, len(indexes))
	for _, idx := range indexes {
		frag := a.fragments[idx]
		args := make(map[string]any)
		if raw := frag.args.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = make(map[string]any)
			}
		}
		calls = append(calls, FunctionCall{
			ID:   frag.id,
			Name: frag.name,
			Args: args,
		})
	}
	return calls
}
