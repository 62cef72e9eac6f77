package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAccession_Valid(t *testing.T) {
	assert.Equal(t, "PRJNA123456", NormalizeAccession("PRJNA123456"))
	assert.Equal(t, "PRJNA123456", NormalizeAccession("  prjna123456 "))
	assert.Equal(t, "PRJEB99", NormalizeAccession("PRJEB99"))
	assert.Equal(t, "PRJDB1", NormalizeAccession("prjdb1"))
}

func TestNormalizeAccession_Invalid(t *testing.T) {
	assert.Empty(t, NormalizeAccession(""))
	assert.Empty(t, NormalizeAccession("PRJNA"))
	assert.Empty(t, NormalizeAccession("PRJXX123"))
	assert.Empty(t, NormalizeAccession("PRJNA123 extra"))
	assert.Empty(t, NormalizeAccession("XPRJNA123"))
}

func TestAccessionPattern_InText(t *testing.T) {
	assert.Equal(t, "PRJNA615625",
		AccessionPattern.FindString("Metagenomes from NYC subway, BioProject PRJNA615625, 2020"))
	assert.Equal(t, "prjeb42020",
		AccessionPattern.FindString("see prjeb42020 for details"))
	assert.Empty(t, AccessionPattern.FindString("PRJ123 is not canonical"))
	assert.Empty(t, AccessionPattern.FindString("XPRJNA123456"))
}

func TestRawRecord_Field(t *testing.T) {
	rec := RawRecord{Fields: map[string]string{"Run": " SRR1 ", "BioProject": "PRJNA1"}}
	assert.Equal(t, "SRR1", rec.Field("Run"))
	assert.Equal(t, "PRJNA1", rec.Field("BioProject"))
	assert.Empty(t, rec.Field("Missing"))
}

func TestResolutionResult_Resolved(t *testing.T) {
	assert.True(t, ResolutionResult{Accession: "PRJNA1", Method: MethodEmbedded}.Resolved())
	assert.False(t, ResolutionResult{Method: MethodNone}.Resolved())
}
