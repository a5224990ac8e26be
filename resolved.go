package protosrc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosrc/protosrc/zerocopy"
)

// ResolvedSet is the result of a resolution: file descriptors ordered so
// that every file follows the files it imports, with no name twice.
type ResolvedSet struct {
	Files []*descriptorpb.FileDescriptorProto

	// Cycles lists the import cycles touching Files, each as the sorted
	// names of its members.
	Cycles [][]string

	sawCycle bool
}

// Names returns the file names in resolution order.
func (s *ResolvedSet) Names() []string {
	names := make([]string, len(s.Files))
	for i, fd := range s.Files {
		names[i] = fd.GetName()
	}
	return names
}

// Len returns the number of files.
func (s *ResolvedSet) Len() int {
	return len(s.Files)
}

// FileDescriptorSet returns the files wrapped in a FileDescriptorSet. The
// descriptors are shared, not copied.
func (s *ResolvedSet) FileDescriptorSet() *descriptorpb.FileDescriptorSet {
	return &descriptorpb.FileDescriptorSet{File: s.Files}
}

// Link builds a registry of linked file descriptors. Every import of every
// file must be part of the set, so Link usually only succeeds for a set
// produced by a single resolution on a fresh Database.
func (s *ResolvedSet) Link() (*protoregistry.Files, error) {
	files, err := protodesc.NewFiles(s.FileDescriptorSet())
	if err != nil {
		return nil, fmt.Errorf("linking descriptors: %w", err)
	}
	return files, nil
}

var marshalOptions = proto.MarshalOptions{Deterministic: true}

// AppendBinary appends the wire encoding of the FileDescriptorSet to buf.
// The encoding is deterministic.
func (s *ResolvedSet) AppendBinary(buf []byte) ([]byte, error) {
	err := zerocopy.WithBufferSink(&buf, func(sink *zerocopy.BufferSink) error {
		return s.MarshalTo(sink)
	})
	return buf, err
}

// MarshalTo writes the wire encoding of the FileDescriptorSet to out.
func (s *ResolvedSet) MarshalTo(out zerocopy.OutputStream) error {
	data, err := marshalOptions.Marshal(s.FileDescriptorSet())
	if err != nil {
		return fmt.Errorf("marshaling descriptor set: %w", err)
	}
	return zerocopy.WriteAll(out, data)
}
