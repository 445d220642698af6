package ir

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wippyai/hostbridge/errors"
)

var (
	nativeIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	hostIdent   = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

	// validate is shared; building a validator is expensive.
	validate = newValidator()
)

type knownEnum interface {
	Known() bool
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	rules := map[string]validator.Func{
		"ident": func(fl validator.FieldLevel) bool {
			return nativeIdent.MatchString(fl.Field().String())
		},
		"hostident": func(fl validator.FieldLevel) bool {
			return hostIdent.MatchString(fl.Field().String())
		},
		"typeref": func(fl validator.FieldLevel) bool {
			_, err := TypeRef(fl.Field().String()).Parse()
			return err == nil
		},
		"known": func(fl validator.FieldLevel) bool {
			k, ok := fl.Field().Interface().(knownEnum)
			return ok && k.Known()
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("ir: register %s validation: %v", tag, err))
		}
	}
	return v
}

// Validate checks a module file: field formats, type references, function
// roles, and host-name uniqueness. All problems are reported; the returned
// error unwraps to the individual *errors.Error values.
func Validate(f *File) error {
	if f == nil {
		return errors.InvalidInput(errors.PhaseIR, "nil module file")
	}

	var errs []error
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return errors.Wrap(errors.PhaseIR, errors.KindInvalidInput, err, "validate module")
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	c := &checker{file: f, types: make(map[string]declared)}
	c.run()
	errs = append(errs, c.errs...)

	return stderrors.Join(errs...)
}

// Problems flattens an error returned by Validate.
func Problems(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func fieldError(fe validator.FieldError) *errors.Error {
	path := strings.Split(fe.Namespace(), ".")
	if len(path) > 1 {
		path = path[1:]
	}
	detail := "failed " + fe.Tag()
	switch fe.Tag() {
	case "required":
		detail = "is required"
	case "ident":
		detail = "is not a valid native identifier"
	case "hostident":
		detail = "is not a valid host identifier"
	case "typeref":
		detail = "is not a valid type reference"
	case "known":
		detail = "has an unknown value"
	}
	return errors.New(errors.PhaseIR, errors.KindInvalidInput).
		Path(path...).
		Value(fe.Value()).
		Detail("%s", detail).
		Build()
}

type declared struct {
	isEnum bool
	kind   StructKind
}

type checker struct {
	file  *File
	types map[string]declared
	errs  []error
}

func (c *checker) fail(err error) {
	c.errs = append(c.errs, err)
}

func (c *checker) invalid(path []string, format string, args ...any) {
	c.fail(errors.New(errors.PhaseIR, errors.KindInvalidInput).
		Path(path...).
		Detail(format, args...).
		Build())
}

func (c *checker) run() {
	c.declare()

	top := newScope()
	for i, s := range c.file.Structs {
		path := []string{at("structs", i)}
		top.add(c, path, s.HostModule, s.HostName)
		c.checkStruct(path, s)
	}
	for i, e := range c.file.Enums {
		path := []string{at("enums", i)}
		top.add(c, path, e.HostModule, e.HostName)
		c.checkEnum(path, e)
	}
	for i, k := range c.file.Consts {
		path := []string{at("consts", i)}
		top.add(c, path, k.HostModule, k.HostName)
		c.checkType(append(path, "type"), k.Type)
	}
	for i, fn := range c.file.Functions {
		path := []string{at("functions", i)}
		top.add(c, path, fn.HostModule, fn.HostName)
		if fn.Self.IsMethod() || fn.Parent != "" {
			c.invalid(path, "free function %s has a receiver; declare it in an impl", fn.Name)
		}
		if fn.Kind != FnNormal {
			c.invalid(path, "free function %s can not be a %s", fn.Name, fn.Kind)
		}
		c.checkFunction(path, fn)
	}

	ns := newScope()
	for i, n := range c.file.Namespaces {
		ns.add(c, []string{at("namespaces", i)}, "", n.HostName)
	}

	c.checkImpls()
}

func (c *checker) declare() {
	seen := newScope()
	for i, s := range c.file.Structs {
		seen.add(c, []string{at("structs", i), "name"}, "", s.Name)
		c.types[s.Name] = declared{kind: s.Kind}
	}
	for i, e := range c.file.Enums {
		seen.add(c, []string{at("enums", i), "name"}, "", e.Name)
		c.types[e.Name] = declared{isEnum: true}
	}
}

func (c *checker) checkStruct(path []string, s Struct) {
	fields := newScope()
	for i, f := range s.Fields {
		fp := append(cloneSlice(path), at("fields", i))
		fields.add(c, fp, "", f.HostName)
		c.checkType(append(fp, "type"), f.Type)
		if s.Positional {
			if f.Name != strconv.Itoa(i) {
				c.invalid(fp, "positional field %d is named %q", i, f.Name)
			}
		} else if !nativeIdent.MatchString(f.Name) {
			c.invalid(fp, "field name %q is not a valid native identifier", f.Name)
		}
		if s.Kind == StructObject && (f.Getter || f.Setter) {
			c.invalid(fp, "object %s is copied by value; field %s can not have accessors", s.Name, f.Name)
		}
	}
}

func (c *checker) checkEnum(path []string, e Enum) {
	names := newScope()
	values := make(map[int32]string, len(e.Variants))
	for i, v := range e.Variants {
		vp := append(cloneSlice(path), at("variants", i))
		names.add(c, vp, "", v.Name)
		if prev, ok := values[v.Value]; ok {
			c.invalid(vp, "variant %s reuses value %d of %s", v.Name, v.Value, prev)
			continue
		}
		values[v.Value] = v.Name
	}
}

func (c *checker) checkImpls() {
	methods := make(map[string]*scope)
	for _, s := range c.file.Structs {
		sc := newScope()
		for i, f := range s.Fields {
			fp := []string{fmt.Sprintf("structs[%s]", s.Name), at("fields", i)}
			if f.Getter {
				sc.add(c, fp, "get", f.HostName)
			}
			if f.Setter {
				sc.add(c, fp, "set", f.HostName)
			}
		}
		methods[s.Name] = sc
	}

	for i, im := range c.file.Impls {
		path := []string{at("impls", i)}
		d, ok := c.types[im.Name]
		if !ok || d.isEnum {
			c.fail(errors.New(errors.PhaseIR, errors.KindNotFound).
				Path(path...).
				Detail("impl for undeclared struct %s", im.Name).
				Build())
			continue
		}
		if !im.TaskOutput.IsZero() {
			c.checkType(append(path, "task_output"), im.TaskOutput)
		}

		sc := methods[im.Name]
		for j, fn := range im.Items {
			fp := append(cloneSlice(path), at("items", j))
			sc.add(c, fp, accessorRole(fn.Kind), fn.HostName)
			if fn.Parent != "" && fn.Parent != im.Name {
				c.invalid(fp, "method %s declares parent %s inside impl %s", fn.Name, fn.Parent, im.Name)
			}
			switch fn.Kind {
			case FnConstructor, FnFactory:
				if fn.Self.IsMethod() {
					c.invalid(fp, "%s %s can not take a receiver", fn.Kind, fn.Name)
				}
				if d.kind == StructObject {
					c.invalid(fp, "object %s can not have a %s", im.Name, fn.Kind)
				}
			case FnGetter:
				if !fn.Self.IsMethod() || len(fn.Args) != 0 || fn.Ret.IsZero() {
					c.invalid(fp, "getter %s must take only a receiver and return a value", fn.Name)
				}
			case FnSetter:
				if !fn.Self.IsMethod() || len(fn.Args) != 1 || fn.Args[0].Kind != ArgValue {
					c.invalid(fp, "setter %s must take a receiver and one value", fn.Name)
				}
			}
			if fn.Async && fn.Kind.IsAccessor() {
				c.invalid(fp, "accessor %s can not be async", fn.Name)
			}
			c.checkFunction(fp, fn)
		}
	}
}

func (c *checker) checkFunction(path []string, fn Function) {
	for i, a := range fn.Args {
		ap := append(cloneSlice(path), at("args", i))
		switch a.Kind {
		case ArgValue:
			if a.Type.IsZero() {
				c.invalid(ap, "value argument %s has no type", a.Name)
			}
			if len(a.CallbackArgs) > 0 || !a.CallbackRet.IsZero() {
				c.invalid(ap, "value argument %s has callback types", a.Name)
			}
			c.checkType(append(ap, "type"), a.Type)
		case ArgCallback:
			if !a.Type.IsZero() {
				c.invalid(ap, "callback argument %s has a value type", a.Name)
			}
			for j, t := range a.CallbackArgs {
				c.checkType(append(cloneSlice(ap), at("callback_args", j)), t)
			}
			c.checkType(append(ap, "callback_ret"), a.CallbackRet)
		}
	}
	c.checkType(append(cloneSlice(path), "ret"), fn.Ret)
}

// checkType verifies that every name a type reference mentions is declared.
func (c *checker) checkType(path []string, t TypeRef) {
	if t.IsZero() {
		return
	}
	expr, err := t.Parse()
	if err != nil {
		// Reported by the field validator.
		return
	}
	expr.walk(func(e TypeExpr) {
		switch e.Name {
		case "own", "borrow":
			d, ok := c.types[e.Params[0].Name]
			if !ok || d.isEnum || d.kind == StructObject {
				c.invalid(path, "%s<%s> needs a class", e.Name, e.Params[0].Name)
			}
		case "_":
		default:
			if _, ok := primitives[e.Name]; ok {
				return
			}
			if _, ok := generics[e.Name]; ok {
				return
			}
			if _, ok := c.types[e.Name]; !ok {
				c.fail(errors.New(errors.PhaseIR, errors.KindNotFound).
					Path(path...).
					Value(string(t)).
					Detail("type %s is not declared", e.Name).
					Build())
			}
		}
	})
}

func accessorRole(k FnKind) string {
	switch k {
	case FnGetter:
		return "get"
	case FnSetter:
		return "set"
	default:
		return ""
	}
}

func at(field string, i int) string {
	return field + "[" + strconv.Itoa(i) + "]"
}

// scope tracks names already taken; each key is namespace + name.
type scope struct {
	seen map[string][]string
}

func newScope() *scope {
	return &scope{seen: make(map[string][]string)}
}

func (s *scope) add(c *checker, path []string, namespace, name string) {
	if name == "" {
		return
	}
	key := namespace + "\x00" + name
	if _, ok := s.seen[key]; ok {
		c.fail(errors.DuplicateName(path, name))
		return
	}
	s.seen[key] = path
}
