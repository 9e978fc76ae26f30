package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

// ErrNoInvocation is returned when no part of a message names a function.
var ErrNoInvocation = errors.New("could not extract invocation from message")

// ExtractInvocation reads a connector invocation from the first DataPart or
// TextPart whose JSON names a function.
func ExtractInvocation(message protocol.Message) (platform.Invocation, error) {
	if len(message.Parts) == 0 {
		return platform.Invocation{}, fmt.Errorf("message has no parts")
	}

	for _, part := range message.Parts {
		var dp *protocol.DataPart
		switch v := part.(type) {
		case protocol.DataPart:
			dp = &v
		case *protocol.DataPart:
			dp = v
		}
		if dp != nil && dp.Data != nil {
			raw, err := json.Marshal(dp.Data)
			if err != nil {
				log.Warnf("Failed to marshal DataPart.Data: %v", err)
				continue
			}
			if inv, ok := decodeInvocation(raw); ok {
				return inv, nil
			}
		}

		if textPart, ok := part.(*protocol.TextPart); ok && textPart != nil {
			if inv, ok := decodeInvocation([]byte(strings.TrimSpace(textPart.Text))); ok {
				return inv, nil
			}
		}
	}

	return platform.Invocation{}, ErrNoInvocation
}

func decodeInvocation(raw []byte) (platform.Invocation, bool) {
	var inv platform.Invocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		log.Debugf("Part is not an invocation: %v", err)
		return platform.Invocation{}, false
	}
	inv.Function = strings.TrimSpace(inv.Function)
	return inv, inv.Function != ""
}

// InvocationMessage wraps inv in a message with a single DataPart.
func InvocationMessage(inv platform.Invocation) (protocol.Message, error) {
	raw, err := json.Marshal(inv)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("failed to marshal invocation: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return protocol.Message{}, err
	}
	return protocol.Message{
		Parts: []protocol.Part{&protocol.DataPart{
			Type: "data",
			Data: data,
			Metadata: map[string]interface{}{
				"content-type": "application/json",
			},
		}},
	}, nil
}

// ArtifactData collects the JSON payloads of the artifacts named name, in order.
func ArtifactData(artifacts []protocol.Artifact, name string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, art := range artifacts {
		if art.Name == nil || *art.Name != name {
			continue
		}
		for _, part := range art.Parts {
			var dp *protocol.DataPart
			switch v := part.(type) {
			case protocol.DataPart:
				dp = &v
			case *protocol.DataPart:
				dp = v
			}
			if dp == nil {
				continue
			}
			raw, err := json.Marshal(dp.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal artifact %s: %w", name, err)
			}
			out = append(out, raw)
		}
	}
	return out, nil
}
