package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/assetcache/internal/meta"
)

const bashCompletionScript = `# bash completion for assetcache
# Fallback if bash-completion is not installed
if ! declare -F _get_comp_words_by_ref >/dev/null 2>&1; then
  _get_comp_words_by_ref() {
    cur=${COMP_WORDS[COMP_CWORD]}
    prev=${COMP_WORDS[COMP_CWORD-1]}
  }
fi

_assetcache()
{
    local cur prev cmd
    COMPREPLY=()
    _get_comp_words_by_ref -n : cur prev

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "serve install ls completion --help --version" -- "$cur") )
        return 0
    fi

    cmd=${COMP_WORDS[1]}
    local store="--store --store-dir --store-path --s3-bucket --s3-prefix --s3-region --s3-profile --s3-endpoint --s3-path-style"
    local worker="--origin --cache --manifest -m"

    case "$cmd" in
        serve)
            local opts="$worker $store --listen -l"
            ;;
        install)
            local opts="$worker $store"
            ;;
        ls)
            local opts="$store --cache --color -c --filter -f --output -o --sort -s --titles -t"
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            return 0
            ;;
        *)
            local opts=""
            ;;
    esac

    case "$prev" in
        --output|-o)
            COMPREPLY=( $(compgen -W "text json yaml" -- "$cur") )
            return 0
            ;;
        --store)
            COMPREPLY=( $(compgen -W "memory disk sqlite s3" -- "$cur") )
            return 0
            ;;
        --store-dir)
            COMPREPLY=( $(compgen -o dirnames -- "$cur") )
            return 0
            ;;
        --store-path)
            COMPREPLY=( $(compgen -f -- "$cur") )
            return 0
            ;;
    esac

    COMPREPLY=( $(compgen -W "$opts" -- "$cur") )
    return 0
}

complete -F _assetcache assetcache
`

const zshCompletionScript = `#compdef assetcache

_assetcache() {
  local -a cmds
  cmds=(
    'serve:install the asset cache and serve the origin through it'
    'install:pre-fetch the manifest into the cache and exit'
    'ls:list caches and cached entries'
    'completion:generate shell completion script'
  )

  local -a store
  store=(
    '--store[cache backend]:kind:(memory disk sqlite s3)'
    '--store-dir[disk store directory]:dir:_directories'
    '--store-path[sqlite database]:file:_files'
    '--s3-bucket[S3 bucket]:bucket'
    '--s3-prefix[S3 key prefix]:prefix'
    '--s3-region[AWS region]:region'
    '--s3-profile[AWS profile]:profile'
    '--s3-endpoint[S3 compatible endpoint]:url'
    '--s3-path-style[path-style addressing]'
  )

  local -a worker
  worker=(
    '--origin[origin base URL]:url'
    '--cache[cache name]:name'
    '(-m --manifest)'{-m,--manifest}'[asset to pre-fetch]:asset'
  )

  if (( CURRENT == 2 )); then
    _describe -t commands 'assetcache commands' cmds
    return
  fi

  case $words[2] in
    serve)
      _arguments -C $worker $store '(-l --listen)'{-l,--listen}'[listen address]:addr'
      ;;
    install)
      _arguments -C $worker $store
      ;;
    ls)
      _arguments -C $store \
        '--cache[cache name]:name' \
        '(-c --color)'{-c,--color}'[enable colored text]' \
        '(-f --filter)'{-f,--filter}'[filters to apply]:filters' \
        '(-o --output)'{-o,--output}'[output format]:format:(text json yaml)' \
        '(-s --sort)'{-s,--sort}'[sort attributes]:attrs' \
        '(-t --titles)'{-t,--titles}'[show titles]'
      ;;
    completion)
      _arguments '1: :((bash zsh))'
      ;;
  esac
}

# If this file is sourced directly (not autoloaded via fpath), ensure compsys is initialized and register the completion
if ! typeset -f compdef >/dev/null 2>&1; then
  autoload -Uz compinit && compinit -i
fi
compdef _assetcache assetcache
`

func CompletionCommandAction(ctx context.Context, cmd *cli.Command) error {
	w := cmd.Root().Writer

	shell := ""
	if args := cmd.Args().Slice(); len(args) > 0 {
		shell = args[0]
	}
	if shell == "" {
		// Try to detect from SHELL.
		sh := os.Getenv("SHELL")
		switch {
		case strings.HasSuffix(sh, "zsh"):
			shell = "zsh"
		case strings.HasSuffix(sh, "bash"):
			shell = "bash"
		}
	}

	switch shell {
	case "bash":
		fmt.Fprint(w, bashCompletionScript)
	case "zsh":
		fmt.Fprint(w, zshCompletionScript)
	default:
		return fmt.Errorf("usage: assetcache completion [bash|zsh]")
	}
	return nil
}

func CompletionCommandBuilder(meta meta.Meta) *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "generate shell completion script",
		UsageText: "assetcache completion [bash|zsh]",
		Metadata: map[string]any{
			"meta": meta,
		},
		Action: CompletionCommandAction,
	}
}
