package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/proposal"
)

// importFile is the YAML layout of a batch of drafts, eg:
//
//	author: {id: ada, name: Ada, level: 3}
//	proposals:
//	  - title: Fractions
//	    category: theoretical
//	    targetHierarchy: 3
//	    content:
//	      - {type: text, content: A fraction is...}
type importFile struct {
	Author    importAuthor           `yaml:"author"`
	Proposals []proposal.NewProposal `yaml:"proposals"`
}

type importAuthor struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Level int    `yaml:"level"`
	Email string `yaml:"email"`
}

func (a importAuthor) core() core.Author {
	return core.Author{ID: a.ID, Name: a.Name, Level: a.Level, Email: a.Email}
}

func (cli *commandLine) importCmd() *cobra.Command {
	var submit bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create drafts from a YAML file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readImportFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			author := batch.Author.core()
			if core.CleanString(author.ID) == "" {
				return argumentError("%s: author.id is required", args[0])
			}

			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}
			for i, np := range batch.Proposals {
				p, err := svc.Create(cmd.Context(), author, np)
				if err != nil {
					return errors.Wrapf(err, "proposal #%d", i+1)
				}
				if submit {
					submitted, err := svc.Submit(cmd.Context(), p.ID, author)
					if err != nil {
						return errors.Wrapf(err, "submitting proposal #%d (%s)", i+1, p.ID)
					}
					p = submitted
				}
				fmt.Fprintf(cli.out, "%s %q %s\n", p.ID, p.ResolvedTitle(), p.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&submit, "submit", false, "Submit every draft once created")
	return cmd
}

func readImportFile(stdin io.Reader, name string) (importFile, error) {
	var r io.Reader = stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return importFile{}, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var batch importFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&batch); err != nil {
		if err == io.EOF {
			return importFile{}, argumentError("%s is empty", name)
		}
		return importFile{}, errors.Wrapf(err, "decoding %s", name)
	}
	return batch, nil
}
