package vm

// Object literals compiled into a unit reuse one hidden class per
// (key-buffer offset, property count) site. The cache is weak: a shape
// nothing else keeps alive is collected and the slot cleared, and the
// next literal at that site rebuilds it. Tagged template objects are
// the opposite case: template identity semantics require the same
// object for the life of the binding, so that cache is strong.

const (
	literalKeyBufferBits = 24
	literalKeyCountBits  = 8
)

// literalShapeKey packs a cache key for a literal site. ok is false
// when the pair is outside the representable range; such sites are
// simply not cached.
func literalShapeKey(bufferIndex, literalCount uint32) (uint32, bool) {
	if bufferIndex >= 1<<literalKeyBufferBits || literalCount >= 1<<literalKeyCountBits {
		return 0, false
	}
	return bufferIndex<<literalKeyCountBits | literalCount, true
}

// FindCachedLiteralShape returns the cached hidden class for a literal
// site, NullRef on a miss or for an uncacheable site.
func (b *ModuleBinding) FindCachedLiteralShape(bufferIndex, literalCount uint32) Ref {
	key, ok := literalShapeKey(bufferIndex, literalCount)
	if !ok {
		return NullRef
	}
	return b.literalShapes[key]
}

// TryCacheLiteralShape caches the hidden class for a literal site.
// Uncacheable sites are ignored. Re-caching a key whose shape is still
// live panics; the collector deletes dead slots, so a present key is a
// live one.
func (b *ModuleBinding) TryCacheLiteralShape(bufferIndex, literalCount uint32, shape Ref) {
	key, ok := literalShapeKey(bufferIndex, literalCount)
	if !ok {
		return
	}
	if _, exists := b.literalShapes[key]; exists {
		panic("vm: literal shape already cached")
	}
	if shape == NullRef {
		panic("vm: caching a null literal shape")
	}
	b.literalShapes[key] = shape
}

// CachedTemplateObject returns the template object cached for a
// template ID, NullRef before CacheTemplateObject.
func (b *ModuleBinding) CachedTemplateObject(templateID uint32) Ref {
	return b.templateObjects[templateID]
}

// CacheTemplateObject caches a template object. The binding keeps it
// alive from then on; caching the same ID twice panics.
func (b *ModuleBinding) CacheTemplateObject(templateID uint32, obj Ref) {
	if _, exists := b.templateObjects[templateID]; exists {
		panic("vm: template object already cached")
	}
	if obj == NullRef {
		panic("vm: caching a null template object")
	}
	b.templateObjects[templateID] = obj
}

// LiteralShapeFor returns the hidden class for an object literal site,
// building it from the unit's key buffer and caching it on a miss. A
// site with no properties has no shape and returns NullRef.
func (b *ModuleBinding) LiteralShapeFor(rt *Runtime, bufferIndex, literalCount uint32) (Ref, error) {
	if literalCount == 0 {
		return NullRef, nil
	}
	if shape := b.FindCachedLiteralShape(bufferIndex, literalCount); shape != NullRef {
		return shape, nil
	}

	keys := b.literalKeyIndices(bufferIndex, literalCount)
	scope := rt.NewHandleScope()
	defer scope.Close()

	// The chain grows root-first; the handle keeps the newest link alive
	// across the next allocation.
	cur := scope.HandleRef(NullRef)
	for slot, idx := range keys {
		shape, err := NewHiddenClass(rt, cur.Ref(), b.mapStringID(idx), uint32(slot))
		if err != nil {
			return NullRef, err
		}
		cur.Set(FromRef(shape))
	}
	b.TryCacheLiteralShape(bufferIndex, literalCount, cur.Ref())
	return cur.Ref(), nil
}

// literalKeyIndices decodes the string indices of one literal site from
// the provider's key buffer: literalCount little-endian uint32 values
// starting at byte bufferIndex.
func (b *ModuleBinding) literalKeyIndices(bufferIndex, literalCount uint32) []uint32 {
	buf := b.provider.ObjectKeyBuffer()
	end := int(bufferIndex) + int(literalCount)*4
	if end > len(buf) {
		panic("vm: object key buffer index out of range")
	}
	keys := make([]uint32, literalCount)
	for i := range keys {
		off := int(bufferIndex) + i*4
		keys[i] = uint32(buf[off]) | uint32(buf[off+1])<<8 |
			uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
	}
	return keys
}
