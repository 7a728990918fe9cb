package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawEntryUnmarshalJSON(t *testing.T) {
	t.Run("Decodes Chinese field keys onto canonical fields", func(t *testing.T) {
		data := `{
			"名字": "季山青",
			"特徵": "白衣剑客",
			"性格": "冷静",
			"說話習慣": "言简意赅",
			"動機": "寻找师妹",
			"別名": "山青",
			"人際關係": "林三酒的师父",
			"備註": "第一章登场"
		}`

		entry := &RawEntry{}
		err := json.Unmarshal([]byte(data), entry)

		require.NoError(t, err)
		assert.Equal(t, "季山青", entry.Name)
		assert.Equal(t, "白衣剑客", entry.Features)
		assert.Equal(t, "冷静", entry.Personality)
		assert.Equal(t, "言简意赅", entry.Quote)
		assert.Equal(t, "寻找师妹", entry.Motivation)
		assert.Equal(t, "山青", entry.Aliases)
		assert.Equal(t, "林三酒的师父", entry.Relationships)
		assert.Equal(t, "第一章登场", entry.Notes)
	})

	t.Run("Decodes English field keys onto canonical fields", func(t *testing.T) {
		data := `{"name": "老王", "features": "守门人", "personality": "沉默"}`

		entry := &RawEntry{}
		err := json.Unmarshal([]byte(data), entry)

		require.NoError(t, err)
		assert.Equal(t, "老王", entry.Name)
		assert.Equal(t, "守门人", entry.Features)
		assert.Equal(t, "沉默", entry.Personality)
	})

	t.Run("Joins multiple spellings of the same field", func(t *testing.T) {
		data := `{"名字": "老王", "features": "守门人", "特徵": "满脸皱纹"}`

		entry := &RawEntry{}
		err := json.Unmarshal([]byte(data), entry)

		require.NoError(t, err)
		assert.Equal(t, "守门人\n满脸皱纹", entry.Features)
	})

	t.Run("First name key wins over later spellings", func(t *testing.T) {
		data := `{"name": "老王", "名字": "王大爷"}`

		entry := &RawEntry{}
		err := json.Unmarshal([]byte(data), entry)

		require.NoError(t, err)
		assert.Equal(t, "老王", entry.Name)
	})

	t.Run("Unknown keys land in Extra unchanged", func(t *testing.T) {
		data := `{"名字": "老王", "登场章节": 3, "阵营": "中立"}`

		entry := &RawEntry{}
		err := json.Unmarshal([]byte(data), entry)

		require.NoError(t, err)
		require.NotNil(t, entry.Extra)
		assert.Equal(t, float64(3), entry.Extra["登场章节"])
		assert.Equal(t, "中立", entry.Extra["阵营"])
	})

	t.Run("String arrays are joined with the enumeration comma", func(t *testing.T) {
		data := `{"名字": "老王", "別名": ["王叔", "老王头"]}`

		entry := &RawEntry{}
		err := json.Unmarshal([]byte(data), entry)

		require.NoError(t, err)
		assert.Equal(t, "王叔、老王头", entry.Aliases)
	})

	t.Run("Non-string scalars decode to their text form", func(t *testing.T) {
		data := `{"名字": "老王", "動機": 42}`

		entry := &RawEntry{}
		err := json.Unmarshal([]byte(data), entry)

		require.NoError(t, err)
		assert.Equal(t, "42", entry.Motivation)
	})

	t.Run("Name whitespace is trimmed", func(t *testing.T) {
		data := `{"名字": "  老王  "}`

		entry := &RawEntry{}
		err := json.Unmarshal([]byte(data), entry)

		require.NoError(t, err)
		assert.Equal(t, "老王", entry.Name)
	})

	t.Run("Repeated decode of the same record is stable", func(t *testing.T) {
		data := `{"特徵": "守门人", "描述": "满脸皱纹", "名字": "老王", "特征": "穿灰袍"}`

		first := &RawEntry{}
		require.NoError(t, json.Unmarshal([]byte(data), first))

		for i := 0; i < 10; i++ {
			again := &RawEntry{}
			require.NoError(t, json.Unmarshal([]byte(data), again))
			assert.Equal(t, first.Features, again.Features)
		}
	})
}

func TestRawEntryDescriptiveText(t *testing.T) {
	t.Run("Combines features and personality", func(t *testing.T) {
		entry := &RawEntry{Features: "白衣剑客", Personality: "冷静"}
		assert.Equal(t, "白衣剑客 冷静", entry.DescriptiveText())
	})

	t.Run("Skips empty fields", func(t *testing.T) {
		entry := &RawEntry{Personality: "冷静"}
		assert.Equal(t, "冷静", entry.DescriptiveText())
	})

	t.Run("Empty entry yields empty text", func(t *testing.T) {
		entry := &RawEntry{}
		assert.Equal(t, "", entry.DescriptiveText())
	})
}
