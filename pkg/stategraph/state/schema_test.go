package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	nameKey     = NewKey[string]("name")
	stepKey     = NewKey[string]("step")
	itemsKey    = NewKey[[]string]("items")
	countKey    = NewKey[int]("count")
	scoreKey    = NewKey[float64]("score")
	doneKey     = NewKey[bool]("done")
	optionalKey = NewKey[string]("optional")
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := DefineSchema(
		Text(nameKey),
		Text(stepKey),
		List(itemsKey),
		Counter(countKey),
		Counter(scoreKey),
		Value(doneKey, false),
		Field(optionalKey),
	)
	require.NoError(t, err)
	return s
}

func TestDefineSchema_RejectsDuplicates(t *testing.T) {
	_, err := DefineSchema(Text(nameKey), Text(NewKey[string]("name")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateField)
}

func TestDefineSchema_RejectsEmptyName(t *testing.T) {
	_, err := DefineSchema(Text(NewKey[string]("")))
	assert.ErrorIs(t, err, ErrEmptyFieldName)
}

func TestMustDefineSchema_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustDefineSchema(Text(nameKey), Text(nameKey))
	})
}

func TestSchema_Fields_DeclarationOrder(t *testing.T) {
	s := testSchema(t)
	assert.Equal(t, []string{"name", "step", "items", "count", "score", "done", "optional"}, s.Fields())
	assert.True(t, s.Has("items"))
	assert.False(t, s.Has("missing"))

	f, ok := s.Field("items")
	require.True(t, ok)
	assert.True(t, f.HasReducer())
	assert.True(t, f.HasDefault())
}

func TestSchema_New(t *testing.T) {
	s := testSchema(t)

	t.Run("defaults applied", func(t *testing.T) {
		st, err := s.New(nil)
		require.NoError(t, err)
		assert.Equal(t, "", nameKey.Get(st))
		assert.Equal(t, []string{}, itemsKey.Get(st))
		assert.Equal(t, 0, countKey.Get(st))
		assert.False(t, st.Has("optional"))
	})

	t.Run("initial values overwrite defaults", func(t *testing.T) {
		st, err := s.New(Update{"name": "ada", "count": 3, "items": []string{"a"}})
		require.NoError(t, err)
		assert.Equal(t, "ada", nameKey.Get(st))
		assert.Equal(t, 3, countKey.Get(st))
		assert.Equal(t, []string{"a"}, itemsKey.Get(st))
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := s.New(Update{"bogus": 1})
		var mergeErr *StateMergeError
		require.ErrorAs(t, err, &mergeErr)
		assert.Equal(t, "bogus", mergeErr.Field)
		assert.ErrorIs(t, err, ErrUnknownField)
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		_, err := s.New(Update{"count": "three"})
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})
}

func TestMerge_EmptyUpdateIsIdentity(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(Update{"name": "x", "step": "plan", "done": true})
	require.NoError(t, err)

	merged, err := s.Merge(st, Update{})
	require.NoError(t, err)
	assert.Equal(t, st.Values(), merged.Values())
}

func TestMerge_AppendPreservesCallOrder(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(nil)
	require.NoError(t, err)

	st, err = s.Merge(st, NewUpdate(itemsKey.To([]string{"a"})))
	require.NoError(t, err)
	st, err = s.Merge(st, NewUpdate(itemsKey.To([]string{"b"})))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, itemsKey.Get(st))
}

func TestMerge_SumAccumulates(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(nil)
	require.NoError(t, err)

	const n = 7
	for i := 0; i < n; i++ {
		st, err = s.Merge(st, Update{"count": 1})
		require.NoError(t, err)
	}
	assert.Equal(t, n, countKey.Get(st))
}

func TestMerge_OverwriteIsIdempotent(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(nil)
	require.NoError(t, err)

	once, err := s.Merge(st, Update{"step": "execute"})
	require.NoError(t, err)
	twice, err := s.Merge(once, Update{"step": "execute"})
	require.NoError(t, err)

	assert.Equal(t, stepKey.Get(once), stepKey.Get(twice))
	assert.Equal(t, once.Values(), twice.Values())
}

func TestMerge_NilValueRetainsPrevious(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(Update{"name": "kept"})
	require.NoError(t, err)

	merged, err := s.Merge(st, Update{"name": nil})
	require.NoError(t, err)
	assert.Equal(t, "kept", nameKey.Get(merged))
}

func TestMerge_AbsentFieldsCarriedOver(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(Update{"name": "a", "count": 2})
	require.NoError(t, err)

	merged, err := s.Merge(st, Update{"step": "validate"})
	require.NoError(t, err)
	assert.Equal(t, "a", nameKey.Get(merged))
	assert.Equal(t, 2, countKey.Get(merged))
	assert.Equal(t, "validate", stepKey.Get(merged))
}

func TestMerge_DoesNotModifyPrevious(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(Update{"name": "before"})
	require.NoError(t, err)

	_, err = s.Merge(st, Update{"name": "after", "items": []string{"x"}})
	require.NoError(t, err)

	assert.Equal(t, "before", nameKey.Get(st))
	assert.Empty(t, itemsKey.Get(st))
}

func TestMerge_ZeroPreviousUsesDefaults(t *testing.T) {
	s := testSchema(t)
	merged, err := s.Merge(State{}, Update{"count": 2})
	require.NoError(t, err)
	assert.Equal(t, 2, countKey.Get(merged))
	assert.Equal(t, []string{}, itemsKey.Get(merged))
}

func TestMerge_Errors(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(Update{"count": 4})
	require.NoError(t, err)

	t.Run("unknown field", func(t *testing.T) {
		_, err := s.Merge(st, Update{"nope": true})
		var mergeErr *StateMergeError
		require.ErrorAs(t, err, &mergeErr)
		assert.Equal(t, "nope", mergeErr.Field)
		assert.ErrorIs(t, err, ErrUnknownField)
	})

	t.Run("type mismatch carries both operands", func(t *testing.T) {
		_, err := s.Merge(st, Update{"count": "one"})
		var mergeErr *StateMergeError
		require.ErrorAs(t, err, &mergeErr)
		assert.Equal(t, "count", mergeErr.Field)
		assert.Equal(t, 4, mergeErr.Previous)
		assert.Equal(t, "one", mergeErr.Incoming)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("schema mismatch", func(t *testing.T) {
		other := MustDefineSchema(Text(nameKey))
		foreign, err := other.New(nil)
		require.NoError(t, err)
		_, err = s.Merge(foreign, Update{})
		assert.ErrorIs(t, err, ErrSchemaMismatch)
	})
}

func TestMerge_ReducerFailure(t *testing.T) {
	errReject := errors.New("negative values not allowed")
	levelKey := NewKey[int]("level")
	s := MustDefineSchema(Field(levelKey, WithReducer[int](func(prev, in int) (int, error) {
		if in < 0 {
			return prev, errReject
		}
		return prev + in, nil
	})))

	st, err := s.New(Update{"level": 2})
	require.NoError(t, err)

	_, err = s.Merge(st, Update{"level": -1})
	var mergeErr *StateMergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, "level", mergeErr.Field)
	assert.Equal(t, 2, mergeErr.Previous)
	assert.Equal(t, -1, mergeErr.Incoming)
	assert.ErrorIs(t, err, errReject)
}

func TestMerge_ReducerPanicBecomesError(t *testing.T) {
	levelKey := NewKey[int]("level")
	s := MustDefineSchema(Field(levelKey, WithReducer[int](func(prev, in int) (int, error) {
		panic("boom")
	})))

	st, err := s.New(nil)
	require.NoError(t, err)

	_, err = s.Merge(st, Update{"level": 1})
	var mergeErr *StateMergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Contains(t, mergeErr.Error(), "reducer panicked: boom")
}

func TestState_ListReadsAreCopies(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(Update{"items": []string{"a", "b"}})
	require.NoError(t, err)

	got := itemsKey.Get(st)
	got[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, itemsKey.Get(st))
}

func TestState_StoredListsAreCopies(t *testing.T) {
	s := testSchema(t)
	src := []string{"a"}
	st, err := s.New(Update{"items": src})
	require.NoError(t, err)

	src[0] = "mutated"
	assert.Equal(t, []string{"a"}, itemsKey.Get(st))
}

func TestState_ZeroValue(t *testing.T) {
	var st State
	assert.True(t, st.IsZero())
	assert.Nil(t, st.Schema())
	_, ok := st.Get("anything")
	assert.False(t, ok)
	assert.Empty(t, st.Values())
}

func TestState_MarshalJSON(t *testing.T) {
	s := MustDefineSchema(Text(nameKey), Counter(countKey))
	st, err := s.New(Update{"name": "x", "count": 2})
	require.NoError(t, err)

	data, err := st.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","count":2}`, string(data))
}

func TestSchema_Decode(t *testing.T) {
	s := testSchema(t)

	t.Run("weakly typed values", func(t *testing.T) {
		u, err := s.Decode(map[string]any{
			"name":  "bob",
			"count": "3",
			"score": 1,
			"done":  "true",
			"items": []any{"a", "b"},
		})
		require.NoError(t, err)
		assert.Equal(t, "bob", u["name"])
		assert.Equal(t, 3, u["count"])
		assert.Equal(t, float64(1), u["score"])
		assert.Equal(t, true, u["done"])
		assert.Equal(t, []string{"a", "b"}, u["items"])
	})

	t.Run("json numbers", func(t *testing.T) {
		u, err := s.Decode(map[string]any{"count": float64(5)})
		require.NoError(t, err)
		assert.Equal(t, 5, u["count"])
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := s.Decode(map[string]any{"zzz": 1})
		assert.ErrorIs(t, err, ErrUnknownField)
	})

	t.Run("undecodable value", func(t *testing.T) {
		_, err := s.Decode(map[string]any{"count": "many"})
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})
}

func TestKey_LookupAndUpdate(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(NewUpdate(nameKey.To("n")).Set(countKey.To(9)))
	require.NoError(t, err)

	v, ok := nameKey.Lookup(st)
	assert.True(t, ok)
	assert.Equal(t, "n", v)
	assert.Equal(t, 9, countKey.Get(st))

	_, ok = optionalKey.Lookup(st)
	assert.False(t, ok)
	assert.Equal(t, "name", nameKey.Name())
}
