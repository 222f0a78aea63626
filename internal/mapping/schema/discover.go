package schema

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/internal/mapping/convert"
	"github.com/conduit-lang/docmap/internal/mapping/hooks"
)

var emptyStructType = reflect.TypeOf(struct{}{})

// discover builds the model of struct type t
func (r *Registry) discover(t reflect.Type) (*TypeModel, error) {
	model := &TypeModel{
		Type:          t,
		Collection:    toSnakeCase(t.Name()),
		Discriminator: t.String(),
		byKey:         make(map[string]*Field),
	}

	d := &discovery{registry: r, root: t, model: model}
	if err := d.scan(t, nil); err != nil {
		return nil, err
	}

	// An untagged ID field is the identity only when no field is tagged id.
	if d.implicitID != nil && model.Identity == nil {
		d.implicitID.Mapping = MappingIdentity
		d.implicitID.Key = IdentityKey
		model.Identity = d.implicitID
	}

	for _, f := range model.Fields {
		if other, exists := model.byKey[f.Key]; exists {
			return nil, discoveryErrorf(t, f.Name, "stored key %q already used by field %s", f.Key, other.Name)
		}
		model.byKey[f.Key] = f
	}

	model.Hooks = hooks.Discover(t)
	return model, nil
}

type discovery struct {
	registry   *Registry
	root       reflect.Type
	model      *TypeModel
	implicitID *Field
}

// scan walks the fields of t, flattening untagged anonymous struct fields
func (d *discovery) scan(t reflect.Type, path []step) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, hasTag := sf.Tag.Lookup(TagName)
		fieldPath := append(append([]step(nil), path...), step{index: i, exported: sf.IsExported()})

		if sf.Name == "_" {
			if hasTag && len(path) == 0 {
				if err := d.applyTypeTag(tag); err != nil {
					return err
				}
			}
			continue
		}

		ft, err := parseFieldTag(tag)
		if err != nil {
			return discoveryErrorf(d.root, sf.Name, "%v", err)
		}
		if ft.transient {
			continue
		}

		if sf.Anonymous && !hasTag {
			embedded := sf.Type
			if embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				if err := d.scan(embedded, fieldPath); err != nil {
					return err
				}
				continue
			}
		}

		if !sf.IsExported() && !hasTag {
			continue
		}
		if ft.final && d.registry.options.IgnoreFinals {
			d.registry.logger.Debug("ignoring final field",
				zap.String("type", d.root.String()), zap.String("field", sf.Name))
			continue
		}

		field, err := d.describe(sf, ft, fieldPath)
		if err != nil {
			return err
		}
		if field == nil {
			continue
		}

		if field.Mapping == MappingIdentity {
			if d.model.Identity != nil {
				return discoveryErrorf(d.root, sf.Name, "identity already declared by field %s", d.model.Identity.Name)
			}
			d.model.Identity = field
		} else if !hasTag && sf.Name == "ID" && field.Mapping == MappingValue && field.ValueKind == KindSingle && !field.Dynamic {
			d.implicitID = field
		}

		d.model.Fields = append(d.model.Fields, field)
	}
	return nil
}

func (d *discovery) applyTypeTag(tag string) error {
	tt, err := parseTypeTag(tag)
	if err != nil {
		return discoveryErrorf(d.root, "", "%v", err)
	}
	if tt.collection != "" {
		d.model.Collection = tt.collection
	}
	if tt.discriminator != "" {
		d.model.Discriminator = tt.discriminator
	}
	d.model.NoDiscriminator = tt.noDiscriminator
	return nil
}

// describe builds the descriptor of one field; a nil field means it is skipped
func (d *discovery) describe(sf reflect.StructField, ft fieldTag, path []step) (*Field, error) {
	converters := d.registry.converters
	f := &Field{
		Name:          sf.Name,
		Key:           sf.Name,
		Type:          sf.Type,
		Lazy:          false,
		IDOnly:        ft.idOnly,
		IgnoreMissing: ft.ignoreMissing,
		Final:         ft.final,
		path:          path,
	}
	if ft.name != "" {
		f.Key = ft.name
	}

	t := sf.Type
	switch {
	case IsLazyReference(t) || converters.Has(t):
		f.ValueKind = KindSingle
		f.ElemType = t
	case t.Kind() == reflect.Array:
		f.ValueKind = KindArray
		f.ElemType = t.Elem()
	case t.Kind() == reflect.Slice:
		f.ValueKind = KindList
		f.ElemType = t.Elem()
	case t.Kind() == reflect.Map && t.Elem() == emptyStructType:
		f.ValueKind = KindSet
		f.ElemType = t.Key()
		f.KeyType = t.Key()
	case t.Kind() == reflect.Map:
		f.ValueKind = KindMap
		f.ElemType = t.Elem()
		f.KeyType = t.Key()
	default:
		f.ValueKind = KindSingle
		f.ElemType = t
	}

	if f.KeyType != nil && !convert.StringConvertible(f.KeyType) {
		return nil, discoveryErrorf(d.root, sf.Name, "map key type %s is not string-convertible", f.KeyType)
	}

	if len(ft.kinds) > 1 {
		return nil, discoveryErrorf(d.root, sf.Name, "conflicting mapping directives %s and %s", ft.kinds[0], ft.kinds[1])
	}

	elem := f.ElemType
	lazy := IsLazyReference(elem)
	kind := ""
	if len(ft.kinds) == 1 {
		kind = ft.kinds[0]
	}

	switch kind {
	case "id":
		if f.ValueKind != KindSingle || !converters.Has(t) {
			return nil, discoveryErrorf(d.root, sf.Name, "identity type %s has no scalar converter", t)
		}
		f.Mapping = MappingIdentity
		f.Key = IdentityKey
	case "value":
		if !d.wireCompatible(elem) {
			return nil, discoveryErrorf(d.root, sf.Name, "value type %s has no scalar converter", elem)
		}
		f.Mapping = MappingValue
	case "embedded":
		if !structLike(baseType(elem)) {
			return nil, discoveryErrorf(d.root, sf.Name, "embedded type %s is not a struct or interface", elem)
		}
		f.Mapping = MappingEmbedded
	case "ref":
		f.Mapping = MappingReference
	case "serialized":
		f.Mapping = MappingSerialized
	default:
		switch {
		case lazy:
			f.Mapping = MappingReference
		case d.wireCompatible(elem):
			f.Mapping = MappingValue
		case structLike(baseType(elem)):
			if !d.registry.options.MapUnmarked {
				d.skip(sf, "struct-valued field without directive while default mapping is off")
				return nil, nil
			}
			f.Mapping = MappingEmbedded
		default:
			d.skip(sf, "type "+t.String()+" is not wire-compatible")
			return nil, nil
		}
	}

	if lazy && f.Mapping != MappingReference {
		return nil, discoveryErrorf(d.root, sf.Name, "lazy reference holder cannot be mapped as %s", f.Mapping)
	}
	if ft.lazy && !lazy {
		return nil, discoveryErrorf(d.root, sf.Name, "lazy requires a lazy reference holder, got %s", elem)
	}
	if (ft.idOnly || ft.ignoreMissing) && f.Mapping != MappingReference {
		return nil, discoveryErrorf(d.root, sf.Name, "idonly and ignoremissing apply to references only")
	}

	if f.Mapping == MappingReference {
		if err := d.checkReference(sf, f, lazy); err != nil {
			return nil, err
		}
	}

	if isDynamic(elem) && f.Mapping != MappingSerialized {
		f.Dynamic = true
		if f.ValueKind.IsMultiValued() {
			d.registry.logger.Warn("dynamically typed collection",
				zap.String("type", d.root.String()),
				zap.String("field", sf.Name),
				zap.String("kind", f.ValueKind.String()))
		}
	}

	return f, nil
}

func (d *discovery) checkReference(sf reflect.StructField, f *Field, lazy bool) error {
	if f.ValueKind == KindSet {
		return discoveryErrorf(d.root, sf.Name, "references cannot be stored in sets")
	}

	target := f.ElemType
	if lazy {
		f.Lazy = true
		target = LazyTarget(target)
	}
	for target.Kind() == reflect.Pointer {
		target = target.Elem()
	}

	switch target.Kind() {
	case reflect.Struct:
		return nil
	case reflect.Interface:
		if f.IDOnly {
			return discoveryErrorf(d.root, sf.Name, "id-only reference to interface %s has no collection", target)
		}
		return nil
	default:
		return discoveryErrorf(d.root, sf.Name, "reference target %s is not a struct", target)
	}
}

func (d *discovery) skip(sf reflect.StructField, reason string) {
	d.registry.logger.Warn("skipping unmapped field",
		zap.String("type", d.root.String()),
		zap.String("field", sf.Name),
		zap.String("reason", reason))
}

// wireCompatible reports whether t is written without an embedded document: scalars
// with a converter, dynamic values, and containers of those.
func (d *discovery) wireCompatible(t reflect.Type) bool {
	if d.registry.converters.Has(t) || isDynamic(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Pointer:
		return d.registry.converters.Has(t.Elem())
	case reflect.Slice, reflect.Array:
		return d.wireCompatible(t.Elem())
	case reflect.Map:
		return convert.StringConvertible(t.Key()) && d.wireCompatible(t.Elem())
	default:
		return false
	}
}

func isDynamic(t reflect.Type) bool {
	return t.Kind() == reflect.Interface && t.NumMethod() == 0
}

// baseType peels pointers and containers off t
func baseType(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
		default:
			return t
		}
	}
}

func structLike(t reflect.Type) bool {
	return t.Kind() == reflect.Struct || t.Kind() == reflect.Interface
}
