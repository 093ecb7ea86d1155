package api

import "github.com/samcharles93/gmkit/pkg/gm"

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type LibraryResponse struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	Name      string         `json:"name,omitempty"`
	Parent    string         `json:"parent,omitempty"`
	CreatedAt int64          `json:"created_at"`
	Info      gm.LibraryInfo `json:"info"`
}

type LibraryListResponse struct {
	Object string            `json:"object"`
	Data   []LibraryResponse `json:"data"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type StringsResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Strings []gm.StringEntry `json:"strings"`
}

type Instruction struct {
	Address int    `json:"address"`
	Opcode  string `json:"opcode"`
	Operand uint32 `json:"operand"`
	Text    string `json:"text,omitempty"`
	Line    string `json:"line"`
}

type DisasmResponse struct {
	ID           string        `json:"id"`
	Object       string        `json:"object"`
	Function     int           `json:"function"`
	Name         string        `json:"name"`
	Instructions []Instruction `json:"instructions"`
}

type MergeRequest struct {
	PatchID       string `json:"patch_id"`
	AppendNew     bool   `json:"append_new"`
	AllowNonASCII bool   `json:"allow_non_ascii"`
}

type MergeResponse struct {
	ID     string          `json:"id"`
	Object string          `json:"object"`
	Base   string          `json:"base"`
	Patch  string          `json:"patch"`
	Report *gm.MergeReport `json:"report"`
}
