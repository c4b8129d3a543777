package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/classvm/vm"
)

var (
	methodFlag = cli.StringFlag{
		Name:  "method, m",
		Usage: "only disassemble methods with this `NAME`",
	}
	dispatchFlag = cli.BoolFlag{
		Name:  "dispatch",
		Usage: "link the class against the classpath and print its vtable and itable",
	}

	disCommand = cli.Command{
		Action:    disassemble,
		Name:      "dis",
		Usage:     "Disassemble a class file",
		ArgsUsage: "<file.class>",
		Flags:     []cli.Flag{methodFlag, dispatchFlag, classpathFlag},
	}
)

// disassemble prints a decoded class file. Unless --dispatch is given
// nothing is linked, so the classes it refers to need not be available.
func disassemble(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected one class file")
	}
	data, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}
	cf, err := vm.ReadClassFile(data)
	if err != nil {
		return err
	}
	name, err := cf.Name()
	if err != nil {
		return err
	}
	if ctx.Bool(dispatchFlag.Name) {
		return printDispatch(ctx, name, data)
	}
	super, err := cf.SuperName()
	if err != nil {
		return err
	}

	fmt.Printf("%s %s", strings.TrimSpace(cf.Flags.String()), bold(name))
	if super != "" {
		fmt.Printf(" extends %s", super)
	}
	for i, idx := range cf.Interfaces {
		iface, err := cf.Pool.ClassName(int(idx))
		if err != nil {
			return err
		}
		if i == 0 {
			fmt.Print(" implements ")
		} else {
			fmt.Print(", ")
		}
		fmt.Print(iface)
	}
	fmt.Println()

	for _, f := range cf.Fields {
		fname, desc, err := memberName(cf, f)
		if err != nil {
			return err
		}
		fmt.Printf("  %s %s %s\n", strings.TrimSpace(f.Flags.String()), fname, desc)
	}

	only := ctx.String(methodFlag.Name)
	for _, mi := range cf.Methods {
		mname, desc, err := memberName(cf, mi)
		if err != nil {
			return err
		}
		if only != "" && mname != only {
			continue
		}
		m := &vm.Method{
			Name:       mname,
			Descriptor: desc,
			Flags:      mi.Flags,
			MaxStack:   int(mi.MaxStack),
			MaxLocals:  int(mi.MaxLocals),
			Code:       mi.Code,
			Owner:      &vm.Class{Name: name, Pool: cf.Pool},
		}
		fmt.Println()
		for _, line := range strings.Split(vm.DisassembleMethod(m), "\n") {
			fmt.Println("  " + line)
		}
	}
	return nil
}

// printDispatch links the class named name, encoded in data, and prints its
// dispatch tables.
func printDispatch(ctx *cli.Context, name string, data []byte) error {
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	c, err := vm.NewLoader(vm.MapSource{name: data}, p.classpath.Sources()).Resolve(name)
	if err != nil {
		return err
	}
	fmt.Println(bold(name))
	fmt.Println(vm.DescribeDispatch(c))
	return nil
}

func memberName(cf *vm.ClassFile, m vm.MemberInfo) (string, string, error) {
	name, err := cf.Pool.Utf8(int(m.NameIndex))
	if err != nil {
		return "", "", err
	}
	desc, err := cf.Pool.Utf8(int(m.DescriptorIndex))
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}
