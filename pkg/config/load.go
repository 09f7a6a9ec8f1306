package config

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// LoadParameters reads a YAML or JSON parameters file, applies defaults and validates it.
func LoadParameters(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Config("load parameters").Field(path).Wrap(err)
	}
	return DecodeParameters(data)
}

// DecodeParameters decodes YAML (or JSON, its subset). Unknown keys are rejected.
func DecodeParameters(data []byte) (*Parameters, error) {
	var p Parameters
	if err := decodeStrict(data, &p); err != nil {
		return nil, simerr.Config("decode parameters").Wrap(err)
	}
	out := p.WithDefaults()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadNeighbourhoodData reads the ward table (JSON or YAML).
func LoadNeighbourhoodData(path string) (NeighbourhoodData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Config("load neighbourhood data").Field(path).Wrap(err)
	}
	return DecodeNeighbourhoodData(data)
}

// DecodeNeighbourhoodData decodes a {ward: {population, neighbours, lat, lng}} document.
func DecodeNeighbourhoodData(data []byte) (NeighbourhoodData, error) {
	var n NeighbourhoodData
	if err := decodeStrict(data, &n); err != nil {
		return nil, simerr.Config("decode neighbourhood data").Wrap(err)
	}
	return n, nil
}

func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("document is empty")
		}
		return err
	}
	return nil
}

// LoadAgeDistribution reads a ';'-separated age table: first column is the
// ward id, the header row holds bracket labels.
func LoadAgeDistribution(path string) (AgeDistribution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, simerr.Config("load age distribution").Field(path).Wrap(err)
	}
	defer f.Close()
	return ReadAgeDistribution(f)
}

// ReadAgeDistribution parses the age table from r.
func ReadAgeDistribution(r io.Reader) (AgeDistribution, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, simerr.Config("read age distribution").Wrap(err)
	}
	if len(records) < 2 || len(records[0]) < 2 {
		return nil, simerr.Config("read age distribution").Msg("need a header and at least one ward row")
	}

	header := records[0][1:]
	brackets := make([]AgeBracket, len(header))
	for i, label := range header {
		lo, hi, err := ParseBracket(label)
		if err != nil {
			return nil, simerr.Config("read age distribution").Field("header").Wrap(err)
		}
		brackets[i] = AgeBracket{Label: strings.TrimSpace(label), Lo: lo, Hi: hi}
	}

	dist := make(AgeDistribution, len(records)-1)
	for row, rec := range records[1:] {
		ward := strings.TrimSpace(rec[0])
		if ward == "" {
			return nil, simerr.Config("read age distribution").Field(fmt.Sprintf("row %d", row+2)).Msg("empty ward id")
		}
		if _, dup := dist[ward]; dup {
			return nil, simerr.Config("read age distribution").Field("ward " + ward).Msg("duplicate row")
		}
		hist := make(AgeHistogram, len(brackets))
		for i, b := range brackets {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, simerr.Config("read age distribution").Field("ward " + ward).Wrap(err)
			}
			b.Fraction = v
			hist[i] = b
		}
		dist[ward] = hist
	}
	return dist, nil
}
