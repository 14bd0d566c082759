package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	TypeHello:    "schemas/hello.schema.json",
	TypeGenerate: "schemas/generate.schema.json",
	TypeFetch:    "schemas/fetch.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat = true
		for _, name := range schemaFiles {
			b, err := schemaFS.ReadFile(name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaURL(name), bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, name := range schemaFiles {
			s, err := c.Compile(schemaURL(name))
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

func schemaURL(name string) string {
	return "mem://hexterrain/" + name
}

// ParseControl validates a client control message and returns it as
// *HelloMsg, *GenerateMsg or *FetchMsg. GENERATE radii above maxRadius are
// rejected. Failures are *Error.
func ParseControl(b []byte, maxRadius int) (any, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, errorf(ErrProtoBadRequest, "bad json: %v", err)
	}
	all, err := compileSchemas()
	if err != nil {
		return nil, errorf(ErrInternal, "schemas: %v", err)
	}
	s, ok := all[base.Type]
	if !ok {
		return nil, errorf(ErrProtoBadRequest, "unknown message type %q", base.Type)
	}

	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errorf(ErrProtoBadRequest, "bad json: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, errorf(ErrBadRequest, "%s: %v", base.Type, err)
	}

	switch base.Type {
	case TypeHello:
		var m HelloMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, errorf(ErrProtoBadRequest, "HELLO: %v", err)
		}
		if m.ProtocolVersion != Version {
			return nil, errorf(ErrProtoVersion, "protocol version %q, server speaks %q", m.ProtocolVersion, Version)
		}
		return &m, nil
	case TypeGenerate:
		var m GenerateMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, errorf(ErrProtoBadRequest, "GENERATE: %v", err)
		}
		if m.Radius != nil && *m.Radius > maxRadius {
			return nil, errorf(ErrBadRequest, "radius %d exceeds limit %d", *m.Radius, maxRadius)
		}
		return &m, nil
	default:
		var m FetchMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, errorf(ErrProtoBadRequest, "FETCH: %v", err)
		}
		return &m, nil
	}
}
