package server

// callbackPage forwards the URL fragment to POST /api/callback and clears it
// from the address bar once the account is stored.
const callbackPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>inboxmerge</title>
</head>
<body>
<p id="status">Linking account...</p>
<script>
(function () {
  var status = document.getElementById("status");
  var fragment = window.location.hash.substring(1);
  if (!fragment) {
    status.textContent = "No sign-in response found.";
    return;
  }
  fetch("/api/callback", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({fragment: fragment})
  }).then(function (resp) {
    return resp.json();
  }).then(function (res) {
    if (res.success) {
      history.replaceState(null, "", window.location.pathname);
    }
    status.textContent = res.success
      ? "Linked " + res.email + (res.is_main ? " as main account." : ".")
      : "Sign-in failed (" + res.stage + ").";
  }).catch(function () {
    status.textContent = "Sign-in failed.";
  });
})();
</script>
</body>
</html>
`
