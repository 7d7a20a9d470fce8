package workflow

import (
	"context"
	"fmt"
	"strings"
)

type hubCall struct {
	kind   string
	parent string
	name   string
	desc   string
}

// fakeHub records every create call and can be told to reject names
// containing a substring.
type fakeHub struct {
	calls  []hubCall
	nextID int
	failOn string
}

func (f *fakeHub) create(kind, parent, name, desc string) (string, error) {
	if f.failOn != "" && strings.Contains(name, f.failOn) {
		return "", fmt.Errorf("hub refused %s %q", kind, name)
	}
	f.nextID++
	id := fmt.Sprintf("%s-%d", kind, f.nextID)
	f.calls = append(f.calls, hubCall{kind: kind, parent: parent, name: name, desc: desc})
	return id, nil
}

func (f *fakeHub) CreateList(_ context.Context, projectID, name, description string) (string, error) {
	return f.create("list", projectID, name, description)
}

func (f *fakeHub) CreateGroup(_ context.Context, listID, name string) (string, error) {
	return f.create("group", listID, name, "")
}

func (f *fakeHub) CreateTask(_ context.Context, containerID, name, description string) (string, error) {
	return f.create("task", containerID, name, description)
}

func (f *fakeHub) ofKind(kind string) []hubCall {
	var out []hubCall
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func strptr(s string) *string { return &s }
