package vectorgrid

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Mapbox vector tile schema.
const (
	tileLayersField = 3
	layerNameField  = 1
)

// LayerNames scans an uncompressed vector tile for the names of its layers
// without decoding geometry or properties. Duplicate names are reported once.
func LayerNames(data []byte) ([]string, error) {
	var names []string
	seen := make(map[string]bool)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("tile tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if num == tileLayersField && typ == protowire.BytesType {
			layer, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("tile layer: %w", protowire.ParseError(n))
			}
			data = data[n:]

			name, err := layerName(layer)
			if err != nil {
				return nil, err
			}
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, fmt.Errorf("tile field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return names, nil
}

func layerName(layer []byte) (string, error) {
	for len(layer) > 0 {
		num, typ, n := protowire.ConsumeTag(layer)
		if n < 0 {
			return "", fmt.Errorf("layer tag: %w", protowire.ParseError(n))
		}
		layer = layer[n:]

		if num == layerNameField && typ == protowire.BytesType {
			name, n := protowire.ConsumeString(layer)
			if n < 0 {
				return "", fmt.Errorf("layer name: %w", protowire.ParseError(n))
			}
			return name, nil
		}

		n = protowire.ConsumeFieldValue(num, typ, layer)
		if n < 0 {
			return "", fmt.Errorf("layer field %d: %w", num, protowire.ParseError(n))
		}
		layer = layer[n:]
	}
	return "", nil
}
