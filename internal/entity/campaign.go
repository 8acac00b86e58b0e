package entity

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCampaignFile reads a campaign YAML file from disk. See
// [LoadCampaignFromReader] for the accepted layout.
func LoadCampaignFile(path string) (*CampaignFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("entity: open campaign file %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadCampaignFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("entity: parse campaign file %q: %w", path, err)
	}
	return cf, nil
}

// LoadCampaignFromReader parses campaign YAML. Unknown keys are rejected.
//
// A file may hold several YAML documents separated by "---", e.g. one per
// arc. Their entities and logs are concatenated in order; the campaign
// metadata comes from the first document that names the campaign. Empty
// input is an error.
func LoadCampaignFromReader(r io.Reader) (*CampaignFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cf *CampaignFile
	for doc := 1; ; doc++ {
		var part CampaignFile
		err := dec.Decode(&part)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("entity: decode campaign yaml document %d: %w", doc, err)
		}
		if cf == nil {
			cf = &part
			continue
		}
		if cf.Campaign.Name == "" {
			cf.Campaign = part.Campaign
		}
		cf.Entities = append(cf.Entities, part.Entities...)
		cf.Logs = append(cf.Logs, part.Logs...)
	}
	if cf == nil {
		return nil, errors.New("entity: campaign yaml is empty")
	}
	return cf, nil
}
