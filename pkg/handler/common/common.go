package common

import (
	"errors"
	"log/slog"

	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/repository/account"
	"github.com/amirasaad/autotransfer/pkg/repository/execution"
	"github.com/amirasaad/autotransfer/pkg/repository/rule"
)

var ErrInvalidRepositoryType = errors.New("invalid repository type")

func GetAccountRepository(
	uow repository.UnitOfWork,
	log *slog.Logger,
) (
	account.Repository,
	error,
) {
	accRepoAny, err := uow.GetRepository(repository.AccountRepositoryType)
	if err != nil {
		log.Error(
			"failed to get account repository",
			"error", err,
		)
		return nil, err
	}
	if accRepo, ok := accRepoAny.(account.Repository); ok {
		return accRepo, nil
	}
	return nil, ErrInvalidRepositoryType
}

func GetRuleRepository(
	uow repository.UnitOfWork,
	log *slog.Logger,
) (
	rule.Repository,
	error,
) {
	ruleRepoAny, err := uow.GetRepository(repository.RuleRepositoryType)
	if err != nil {
		log.Error(
			"failed to get rule repository",
			"error", err,
		)
		return nil, err
	}
	if ruleRepo, ok := ruleRepoAny.(rule.Repository); ok {
		return ruleRepo, nil
	}
	return nil, ErrInvalidRepositoryType
}

func GetExecutionRepository(
	uow repository.UnitOfWork,
	log *slog.Logger,
) (
	execution.Repository,
	error,
) {
	execRepoAny, err := uow.GetRepository(repository.ExecutionRepositoryType)
	if err != nil {
		log.Error(
			"failed to get execution repository",
			"error", err,
		)
		return nil, err
	}
	if execRepo, ok := execRepoAny.(execution.Repository); ok {
		return execRepo, nil
	}
	return nil, ErrInvalidRepositoryType
}
