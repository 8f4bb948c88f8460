package web

import (
	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

// resolveRequest is the body of POST /api/imports/{id}/resolutions.
type resolveRequest struct {
	Resolutions []core.ResolutionRequest `json:"resolutions" validate:"required,min=1,max=10000,dive"`
}

// fieldResponse describes one field of an entity kind.
type fieldResponse struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	EnumValues []string `json:"enumValues,omitempty"`
}

// kindResponse describes an entity kind rows can be imported into.
type kindResponse struct {
	Key               string          `json:"key"`
	Label             string          `json:"label"`
	Scope             core.KindScope  `json:"scope"`
	Fields            []fieldResponse `json:"fields"`
	IdentityFields    []string        `json:"identityFields"`
	DescriptiveFields []string        `json:"descriptiveFields"`
	AssetFields       []string        `json:"assetFields,omitempty"`
}

func toKindResponse(k core.EntityKind) kindResponse {
	fields := make([]fieldResponse, 0, len(k.Fields))
	for _, f := range k.Fields {
		fields = append(fields, fieldResponse{
			Name:       f.Name,
			Type:       f.Type.String(),
			Required:   f.Required,
			EnumValues: f.EnumValues,
		})
	}
	return kindResponse{
		Key:               k.Key,
		Label:             k.Label,
		Scope:             k.Scope,
		Fields:            fields,
		IdentityFields:    k.IdentityFields,
		DescriptiveFields: k.DescriptiveFields,
		AssetFields:       k.AssetFields,
	}
}

// rowResponse is one parsed row.
type rowResponse struct {
	Index     int               `json:"index"`
	Line      int               `json:"line"`
	Valid     bool              `json:"valid"`
	RawFields map[string]string `json:"rawFields"`
	Fields    core.Fields       `json:"fields,omitempty"`
	Errors    []core.RowError   `json:"errors,omitempty"`
}

func toRowResponse(r core.ParsedRow) rowResponse {
	resp := rowResponse{
		Index:     r.Index,
		Line:      r.Line,
		Valid:     r.Valid(),
		RawFields: r.RawFields,
		Errors:    r.ParseErrors,
	}
	if r.Candidate != nil {
		resp.Fields = r.Candidate.Fields
	}
	return resp
}
