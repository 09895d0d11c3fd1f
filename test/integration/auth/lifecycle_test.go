// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

//go:build integration

package auth_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"

	"github.com/storefront/storefront/internal/auth"
	"github.com/storefront/storefront/internal/notify"
)

const password = "P@ssw0rd1"

func codeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

func activeRefreshCount(ctx context.Context, userID ulid.ULID) int {
	tokens, err := env.Tokens.ListActiveByUser(ctx, userID, auth.TokenRefresh)
	Expect(err).NotTo(HaveOccurred())
	return len(tokens)
}

// registerVerified registers an account and completes email verification.
func registerVerified(ctx context.Context, svc *auth.Service, email, phone string) *auth.AuthResult {
	_, err := svc.Register(ctx, auth.RegisterInput{
		FullName: "Test Customer", Email: email, Password: password, PhoneNumber: phone,
	})
	Expect(err).NotTo(HaveOccurred())

	result, err := svc.VerifyEmail(ctx, env.Mailbox.lastToken(notify.KindVerification, email))
	Expect(err).NotTo(HaveOccurred())
	return result
}

var _ = Describe("Credential lifecycle", func() {
	var (
		ctx context.Context
		svc *auth.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		env.reset(ctx)
		svc = env.newService(testConfig())
	})

	Describe("registration and verification", func() {
		It("requires verification before login and signs in on verify", func() {
			reg, err := svc.Register(ctx, auth.RegisterInput{
				FullName: "Ada Lovelace", Email: "Ada@Example.com", Password: password, PhoneNumber: "+84901234567",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reg.RequiresEmailVerification).To(BeTrue())
			Expect(reg.User.Email).To(Equal("ada@example.com"))
			Expect(env.Mailbox.count(notify.KindVerification, "ada@example.com")).To(Equal(1))

			_, err = svc.Login(ctx, "ada@example.com", password)
			Expect(codeOf(err)).To(Equal(auth.CodeEmailNotVerified))

			verified, err := svc.VerifyEmail(ctx, env.Mailbox.lastToken(notify.KindVerification, "ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
			Expect(verified.User.IsEmailVerified).To(BeTrue())
			Expect(verified.AccessToken).NotTo(BeEmpty())
			Expect(verified.RefreshToken).NotTo(BeEmpty())
			Expect(env.Mailbox.count(notify.KindWelcome, "ada@example.com")).To(Equal(1))

			stored, err := env.Users.GetByEmail(ctx, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IsEmailVerified).To(BeTrue())

			claims, err := svc.Authenticate(ctx, verified.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.Subject).To(Equal(stored.ID.String()))
		})

		It("rejects duplicate email and phone", func() {
			registerVerified(ctx, svc, "dup@example.com", "+84900000001")

			_, err := svc.Register(ctx, auth.RegisterInput{
				FullName: "Other", Email: "DUP@example.com", Password: password, PhoneNumber: "+84900000002",
			})
			Expect(codeOf(err)).To(Equal(auth.CodeEmailTaken))

			_, err = svc.Register(ctx, auth.RegisterInput{
				FullName: "Other", Email: "other@example.com", Password: password, PhoneNumber: "+84900000001",
			})
			Expect(codeOf(err)).To(Equal(auth.CodePhoneTaken))
		})

		It("accepts a verification token only once", func() {
			_, err := svc.Register(ctx, auth.RegisterInput{
				FullName: "Once", Email: "once@example.com", Password: password, PhoneNumber: "+84900000003",
			})
			Expect(err).NotTo(HaveOccurred())
			token := env.Mailbox.lastToken(notify.KindVerification, "once@example.com")

			_, err = svc.VerifyEmail(ctx, token)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.VerifyEmail(ctx, token)
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidToken))
		})

		It("invalidates the previous link when verification is resent", func() {
			_, err := svc.Register(ctx, auth.RegisterInput{
				FullName: "Resend", Email: "resend@example.com", Password: password, PhoneNumber: "+84900000004",
			})
			Expect(err).NotTo(HaveOccurred())
			first := env.Mailbox.lastToken(notify.KindVerification, "resend@example.com")

			Expect(svc.ResendVerificationEmail(ctx, "resend@example.com")).To(Succeed())
			second := env.Mailbox.lastToken(notify.KindVerification, "resend@example.com")
			Expect(second).NotTo(Equal(first))

			_, err = svc.VerifyEmail(ctx, first)
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidToken))

			_, err = svc.VerifyEmail(ctx, second)
			Expect(err).NotTo(HaveOccurred())

			err = svc.ResendVerificationEmail(ctx, "resend@example.com")
			Expect(codeOf(err)).To(Equal(auth.CodeEmailAlreadyVerified))
		})

		It("reports resend delivery failures", func() {
			_, err := svc.Register(ctx, auth.RegisterInput{
				FullName: "Fail", Email: "fail@example.com", Password: password, PhoneNumber: "+84900000005",
			})
			Expect(err).NotTo(HaveOccurred())

			env.Mailbox.failWith(errors.New("smtp unavailable"))
			err = svc.ResendVerificationEmail(ctx, "fail@example.com")
			Expect(err).To(HaveOccurred())
			Expect(auth.KindOf(err)).To(Equal(auth.KindInternal))
		})
	})

	Describe("sessions", func() {
		It("rotates refresh tokens and rejects reuse", func() {
			session := registerVerified(ctx, svc, "rotate@example.com", "+84900000010")

			rotated, err := svc.Refresh(ctx, session.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(rotated.RefreshToken).NotTo(Equal(session.RefreshToken))

			_, err = svc.Refresh(ctx, session.RefreshToken)
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidToken))
			Expect(activeRefreshCount(ctx, session.User.ID)).To(Equal(1))
		})

		It("lets exactly one concurrent refresh win", func() {
			session := registerVerified(ctx, svc, "race@example.com", "+84900000011")

			const racers = 6
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					} else {
						Expect(codeOf(err)).To(Equal(auth.CodeInvalidToken))
					}
				}()
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
			Expect(activeRefreshCount(ctx, session.User.ID)).To(Equal(1))
		})

		It("keeps only the newest sessions", func() {
			session := registerVerified(ctx, svc, "limit@example.com", "+84900000012")

			var newest *auth.AuthResult
			for range 4 {
				res, err := svc.Login(ctx, "limit@example.com", password)
				Expect(err).NotTo(HaveOccurred())
				newest = res
			}

			Expect(activeRefreshCount(ctx, session.User.ID)).To(Equal(3))
			_, err := svc.Refresh(ctx, session.RefreshToken)
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidToken), "oldest session is evicted")
			_, err = svc.Refresh(ctx, newest.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
		})

		It("logs out every session", func() {
			session := registerVerified(ctx, svc, "logout@example.com", "+84900000013")
			_, err := svc.Login(ctx, "logout@example.com", password)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Logout(ctx, session.User.ID)).To(Succeed())
			Expect(activeRefreshCount(ctx, session.User.ID)).To(BeZero())
			Expect(svc.Logout(ctx, session.User.ID)).To(Succeed())
		})

		It("rejects wrong passwords and unknown accounts alike", func() {
			registerVerified(ctx, svc, "creds@example.com", "+84900000014")

			_, err := svc.Login(ctx, "creds@example.com", "wrong-password")
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidCredentials))

			_, err = svc.Login(ctx, "nobody@example.com", password)
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidCredentials))
		})
	})

	Describe("password recovery", func() {
		It("resets the password and revokes sessions", func() {
			session := registerVerified(ctx, svc, "reset@example.com", "+84900000020")

			Expect(svc.ForgotPassword(ctx, "reset@example.com")).To(Succeed())
			token := env.Mailbox.lastToken(notify.KindPasswordReset, "reset@example.com")

			Expect(svc.ResetPassword(ctx, token, "N3w-passw0rd")).To(Succeed())
			Expect(activeRefreshCount(ctx, session.User.ID)).To(BeZero())

			_, err := svc.Login(ctx, "reset@example.com", password)
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidCredentials))
			_, err = svc.Login(ctx, "reset@example.com", "N3w-passw0rd")
			Expect(err).NotTo(HaveOccurred())

			err = svc.ResetPassword(ctx, token, "An0ther-one")
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidToken))
		})

		It("is silent for unknown emails", func() {
			Expect(svc.ForgotPassword(ctx, "ghost@example.com")).To(Succeed())
			Expect(env.Mailbox.all()).To(BeEmpty())
		})

		It("supersedes an earlier reset link", func() {
			registerVerified(ctx, svc, "twice@example.com", "+84900000021")

			Expect(svc.ForgotPassword(ctx, "twice@example.com")).To(Succeed())
			first := env.Mailbox.lastToken(notify.KindPasswordReset, "twice@example.com")
			Expect(svc.ForgotPassword(ctx, "twice@example.com")).To(Succeed())

			err := svc.ResetPassword(ctx, first, "N3w-passw0rd")
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidToken))
		})

		It("changes the password of a signed-in user", func() {
			session := registerVerified(ctx, svc, "change@example.com", "+84900000022")

			err := svc.ChangePassword(ctx, session.User.ID, "not-it", "N3w-passw0rd")
			Expect(codeOf(err)).To(Equal(auth.CodeWrongPassword))

			Expect(svc.ChangePassword(ctx, session.User.ID, password, "N3w-passw0rd")).To(Succeed())
			Expect(activeRefreshCount(ctx, session.User.ID)).To(BeZero())
			_, err = svc.Login(ctx, "change@example.com", "N3w-passw0rd")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("expiry and cleanup", func() {
		It("treats expired reset tokens as invalid and sweeps them", func() {
			cfg := testConfig()
			cfg.ResetTTL = time.Second
			shortSvc := env.newService(cfg)
			registerVerified(ctx, shortSvc, "expire@example.com", "+84900000030")

			Expect(shortSvc.ForgotPassword(ctx, "expire@example.com")).To(Succeed())
			token := env.Mailbox.lastToken(notify.KindPasswordReset, "expire@example.com")

			time.Sleep(1100 * time.Millisecond)
			err := shortSvc.ResetPassword(ctx, token, "N3w-passw0rd")
			Expect(codeOf(err)).To(Equal(auth.CodeInvalidToken))

			deleted, err := env.newScheduler().SweepExpired(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeNumerically(">=", 1))
		})
	})
})
