package store

import (
	"github.com/gwnode/gwnode/internal/gwtypes"
)

func encodeGlobalState(g gwtypes.GlobalState) []byte { return g.MarshalBinary() }

func decodeGlobalState(b []byte) gwtypes.GlobalState { return gwtypes.DecodeGlobalState(b) }
