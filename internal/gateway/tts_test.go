package gateway

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestPCMToWAVHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := pcmToWAV(pcm, 24000)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, "data", string(wav[36:40]))

	assert.EqualValues(t, 36+len(pcm), binary.LittleEndian.Uint32(wav[4:8]))
	assert.EqualValues(t, 1, binary.LittleEndian.Uint16(wav[22:24]), "mono")
	assert.EqualValues(t, 24000, binary.LittleEndian.Uint32(wav[24:28]))
	assert.EqualValues(t, 48000, binary.LittleEndian.Uint32(wav[28:32]), "byte rate")
	assert.EqualValues(t, 16, binary.LittleEndian.Uint16(wav[34:36]), "bits per sample")
	assert.EqualValues(t, len(pcm), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestToneInstructionsCoverNonNeutralAffects(t *testing.T) {
	for _, affect := range []string{AffectQuestioning, AffectEmpathy, AffectEncouraging, AffectExcited} {
		assert.Contains(t, toneInstructions, affect)
	}
	_, neutral := toneInstructions[AffectNeutral]
	assert.False(t, neutral, "neutral text is synthesized without a style direction")
}

func TestAudioPayloadExtraction(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "ignored"},
				{InlineData: &genai.Blob{MIMEType: "audio/L16", Data: []byte{0xAA, 0xBB}}},
			}}},
		},
	}

	assert.Equal(t, []byte{0xAA, 0xBB}, audioPayload(resp))
	assert.Nil(t, audioPayload(&genai.GenerateContentResponse{}))
}

func TestCodesignToolDeclarations(t *testing.T) {
	require.Len(t, codesignTools, 1)
	decls := codesignTools[0].FunctionDeclarations
	require.Len(t, decls, 2)

	byName := map[string]*genai.FunctionDeclaration{}
	for _, d := range decls {
		byName[d.Name] = d
	}

	insight, ok := byName["capture_insight"]
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"insight_type", "content", "source"}, insight.Parameters.Required)

	empathy, ok := byName["add_to_empathy_map"]
	require.True(t, ok)
	assert.Contains(t, empathy.Parameters.Properties["category"].Enum, "touches")
}
