// Package riscv64 - Tests for machine code validator
package riscv64

import (
	"strings"
	"testing"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
)

func assemble(t *testing.T, frame int, emit func(m *Machine)) *codegen.Object {
	t.Helper()
	m := NewMachine()
	emit(m)
	code, listing, err := m.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return &codegen.Object{Name: "test", Arch: Arch, Code: code, Listing: listing, FrameSize: frame}
}

func framed(frame int, body func(m *Machine)) func(m *Machine) {
	return func(m *Machine) {
		m.Prologue(frame)
		body(m)
		m.Epilogue()
	}
}

func TestValidatorValidCode(t *testing.T) {
	obj := assemble(t, 16, framed(16, func(m *Machine) {
		m.Store(1, A0)
		m.Load(T0, 1)
		m.Add(A0, T0, A1)
	}))
	if err := NewValidator().Validate(obj); err != nil {
		t.Errorf("valid code failed validation: %v", err)
	}
}

func TestValidatorErrors(t *testing.T) {
	tests := []struct {
		name string
		obj  func(t *testing.T) *codegen.Object
		want string
	}{
		{
			name: "reserved register",
			obj: func(t *testing.T) *codegen.Object {
				return assemble(t, 0, framed(0, func(m *Machine) { m.Li(S11, 1) }))
			},
			want: "reserved register s11",
		},
		{
			name: "missing teardown",
			obj: func(t *testing.T) *codegen.Object {
				return assemble(t, 0, func(m *Machine) {
					m.Prologue(0)
					m.Ret()
				})
			},
			want: "teardown",
		},
		{
			name: "slot outside frame",
			obj: func(t *testing.T) *codegen.Object {
				return assemble(t, 16, framed(16, func(m *Machine) { m.Load(A0, 8) }))
			},
			want: "outside frame",
		},
		{
			name: "listing mismatch",
			obj: func(t *testing.T) *codegen.Object {
				obj := assemble(t, 0, framed(0, func(m *Machine) {}))
				obj.Code = append([]byte{}, obj.Code...)
				obj.Code[4] ^= 0x80
				return obj
			},
			want: "differs from code",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidator().Validate(tt.obj(t))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q error, got %v", tt.want, err)
			}
		})
	}
}
