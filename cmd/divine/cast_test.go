package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

func TestCastResult_Seeded(t *testing.T) {
	res, err := castResult(domain.MethodLiuyao, "abc", domain.LangZH)
	require.NoError(t, err)
	require.NotNil(t, res.Liuyao)
	assert.Equal(t, 60, res.Liuyao.PrimaryHexagram.ID)
	assert.Nil(t, res.Liuyao.RelatingHexagram)

	res, err = castResult(domain.MethodTarot, "abc", domain.LangZH)
	require.NoError(t, err)
	require.NotNil(t, res.Tarot)
	assert.Equal(t, []int{0, 4, 13}, res.Tarot.DrawSequence)

	_, err = castResult("runes", "abc", domain.LangZH)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCastCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"cast", "liuyao", "--seed", "abc", "--lang", "zh"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "节")
	assert.Contains(t, out.String(), "无动爻")
}

func TestCastCommand_RejectsUnknownMethod(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"cast", "runes"})
	require.Error(t, rootCmd.Execute())
}
