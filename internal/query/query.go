// Package query builds memory predicates from expressions, glob patterns
// and metadata criteria.
package query

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gobwas/glob"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/memory"
)

// exprEnv is the environment an expression is evaluated against.
//
//	sequence  uint64
//	timestamp time.Time
//	payload   the entry payload
//	metadata  map[string]any
func exprEnv[T any](e memory.Entry[T]) map[string]any {
	return map[string]any{
		"sequence":  e.Sequence,
		"timestamp": e.Timestamp,
		"payload":   e.Payload,
		"metadata":  e.Metadata,
	}
}

var (
	programMu    sync.RWMutex
	programCache = make(map[string]*vm.Program)
)

// programKey keys the cache by payload type so a program type-checked for
// one payload type is never reused for another.
func programKey[T any](source string) string {
	return reflect.TypeFor[T]().String() + "|" + source
}

func compile[T any](source string) (*vm.Program, error) {
	key := programKey[T](source)

	programMu.RLock()
	if program, ok := programCache[key]; ok {
		programMu.RUnlock()
		return program, nil
	}
	programMu.RUnlock()

	program, err := expr.Compile(source,
		expr.Env(exprEnv(memory.Entry[T]{Metadata: map[string]any{}})),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	programMu.Lock()
	if existing, ok := programCache[key]; ok {
		programMu.Unlock()
		return existing, nil
	}
	programCache[key] = program
	programMu.Unlock()

	return program, nil
}

// Expr compiles a boolean expr-lang expression into a predicate, e.g.
//
//	metadata.category == "Physics" && sequence > 10
//
// An expression that fails at evaluation time (for example a type mismatch
// on a particular entry) rejects that entry.
func Expr[T any](source string) (memory.Predicate[T], error) {
	program, err := compile[T](source)
	if err != nil {
		return nil, mosaicerrors.Wrap(mosaicerrors.CodeInvalidArgument,
			fmt.Sprintf("compile expression %q", source), err)
	}

	return func(e memory.Entry[T]) bool {
		out, err := expr.Run(program, exprEnv(e))
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}, nil
}

// Glob matches string payloads against a shell-style pattern such as
// "Discovery *: Quantum*".
func Glob(pattern string) (memory.Predicate[string], error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, mosaicerrors.Wrap(mosaicerrors.CodeInvalidArgument,
			fmt.Sprintf("compile glob %q", pattern), err)
	}
	return func(e memory.Entry[string]) bool {
		return g.Match(e.Payload)
	}, nil
}

// MetadataEquals matches entries whose metadata holds value under key.
func MetadataEquals[T any](key string, value any) memory.Predicate[T] {
	return func(e memory.Entry[T]) bool {
		v, ok := e.Metadata[key]
		return ok && memory.ValuesEqual(v, value)
	}
}

// HasMetadata matches entries carrying key, whatever its value.
func HasMetadata[T any](key string) memory.Predicate[T] {
	return func(e memory.Entry[T]) bool {
		_, ok := e.Metadata[key]
		return ok
	}
}

// PayloadEquals matches entries whose payload equals p.
func PayloadEquals[T comparable](p T) memory.Predicate[T] {
	return func(e memory.Entry[T]) bool {
		return e.Payload == p
	}
}

// Since matches entries created at or after t.
func Since[T any](t time.Time) memory.Predicate[T] {
	return func(e memory.Entry[T]) bool {
		return !e.Timestamp.Before(t)
	}
}

// And matches when every predicate matches. Nil predicates are skipped.
func And[T any](preds ...memory.Predicate[T]) memory.Predicate[T] {
	return func(e memory.Entry[T]) bool {
		for _, p := range preds {
			if p != nil && !p(e) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches.
func Or[T any](preds ...memory.Predicate[T]) memory.Predicate[T] {
	return func(e memory.Entry[T]) bool {
		for _, p := range preds {
			if p != nil && p(e) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not[T any](p memory.Predicate[T]) memory.Predicate[T] {
	return func(e memory.Entry[T]) bool {
		return !p(e)
	}
}

// Filters are the string-store filters shared by the CLI and HTTP API.
// Empty fields are ignored; set fields combine with And.
type Filters struct {
	Where    string // expression, see Expr
	Match    string // payload glob, see Glob
	Category string // metadata "category" equality
}

// Predicate compiles f. It returns nil when no filter is set.
func (f Filters) Predicate() (memory.Predicate[string], error) {
	var preds []memory.Predicate[string]
	if f.Where != "" {
		p, err := Expr[string](f.Where)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if f.Match != "" {
		p, err := Glob(f.Match)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if f.Category != "" {
		preds = append(preds, MetadataEquals[string]("category", f.Category))
	}
	if len(preds) == 0 {
		return nil, nil
	}
	return And(preds...), nil
}
